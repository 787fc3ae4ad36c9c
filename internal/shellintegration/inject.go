package shellintegration

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DetectShellType infers a ShellType from a shell binary's path (or bare
// name, as found in $SHELL), matching on the executable's base name. Any
// POSIX shell this package doesn't special-case falls back to Bash, since
// the bash snippet's printf-based OSC emission also runs under sh/dash.
func DetectShellType(shellPath string) ShellType {
	switch base := strings.ToLower(filepath.Base(shellPath)); {
	case strings.Contains(base, "zsh"):
		return Zsh
	case strings.Contains(base, "pwsh"), strings.Contains(base, "powershell"):
		return PowerShell
	default:
		return Bash
	}
}

// Injection is the environment/argument overlay a spawn path applies to a
// freshly started shell so it sources Generate's OSC-emitting snippet.
type Injection struct {
	Env  []string // appended to the spawned process's environment
	Args []string // appended after the shell's own argv
}

// Inject writes shellType's snippet to a cached file under dir — reused
// across every pane spawned with the same shellType for this daemon's
// lifetime, rather than a fresh temp file per pane — and returns the
// overlay that makes a shell source it on startup: BASH_ENV for bash
// (non-interactive shells source it automatically; interactive panes need
// none of the caller's own -i handling since ptybackend always starts one),
// ZDOTDIR for zsh (zsh reads "$ZDOTDIR/.zshenv" before anything else), and
// an explicit -File for PowerShell, which has no environment-variable
// equivalent.
func Inject(dir string, shellType ShellType) (Injection, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return Injection{}, fmt.Errorf("shellintegration: create snippet dir: %w", err)
	}
	switch shellType {
	case Bash:
		path := filepath.Join(dir, "bash_env.sh")
		if err := writeIfMissing(path, Generate(Bash)); err != nil {
			return Injection{}, err
		}
		return Injection{Env: []string{"BASH_ENV=" + path}}, nil
	case Zsh:
		if err := writeIfMissing(filepath.Join(dir, ".zshenv"), Generate(Zsh)); err != nil {
			return Injection{}, err
		}
		return Injection{Env: []string{"ZDOTDIR=" + dir}}, nil
	case PowerShell:
		path := filepath.Join(dir, "profile.ps1")
		if err := writeIfMissing(path, Generate(PowerShell)); err != nil {
			return Injection{}, err
		}
		return Injection{Args: []string{"-NoExit", "-ExecutionPolicy", "Bypass", "-File", path}}, nil
	default:
		return Injection{}, nil
	}
}

// writeIfMissing avoids re-writing (and racing concurrent pane spawns
// against) a snippet file that's already in place from an earlier pane.
func writeIfMissing(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(content), 0600)
}
