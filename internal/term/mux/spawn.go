package mux

import (
	"os"

	"github.com/orbitx-dev/orbitx/internal/shellintegration"
	"github.com/orbitx-dev/orbitx/internal/term"
	"github.com/orbitx-dev/orbitx/internal/term/ptybackend"
)

// DefaultSpawn returns a SpawnFunc that spawns the given shell via
// ptybackend.Spawn, for use by production callers constructing a Mux.
//
// snippetDir, when non-empty, points at a directory DefaultSpawn uses to
// cache the shell-integration rc snippet for shellPath's detected
// ShellType and inject it into every pane spawned through this SpawnFunc,
// via BASH_ENV/ZDOTDIR/-File depending on shell (see
// shellintegration.Inject). An empty snippetDir disables injection, so
// panes fall back to the teacher's plain, uninstrumented shell spawn.
func DefaultSpawn(shellPath string, snippetDir string, args []string) SpawnFunc {
	shellType := shellintegration.DetectShellType(shellPath)
	return func(env []string, cwd string, size term.PtySize) (PaneBackend, error) {
		if snippetDir == "" {
			return ptybackend.Spawn(shellPath, args, env, cwd, size)
		}
		inj, err := shellintegration.Inject(snippetDir, shellType)
		if err != nil {
			return ptybackend.Spawn(shellPath, args, env, cwd, size)
		}
		spawnEnv := env
		if len(inj.Env) > 0 {
			base := env
			if base == nil {
				base = os.Environ()
			}
			spawnEnv = append(append([]string{}, base...), inj.Env...)
		}
		spawnArgs := append(append([]string{}, args...), inj.Args...)
		return ptybackend.Spawn(shellPath, spawnArgs, spawnEnv, cwd, size)
	}
}
