// Package shellintegration generates the bash/zsh/PowerShell snippets that
// emit OSC 133/7/1337 semantic-prompt markers (spec.md §4.3) and parses
// those markers back out of a pane's raw output stream, stripping them so
// they never reach the terminal display. The incremental accumulator style
// mirrors the teacher's internal/ws client buffering: bytes arrive in
// arbitrary chunks and the parser must make progress on partial escape
// sequences without blocking on more input.
package shellintegration

import (
	"fmt"
	"strconv"
	"strings"
)

// ShellType identifies which snippet to inject.
type ShellType int

const (
	Bash ShellType = iota
	Zsh
	PowerShell
)

// Generate returns the shell-specific snippet that emits the OSC sequences
// in spec.md's table. Inject caches this content to a file under the
// daemon's state directory and points a freshly spawned shell at it via
// BASH_ENV, ZDOTDIR, or an explicit -File argument, depending on ShellType.
func Generate(s ShellType) string {
	switch s {
	case Bash:
		return bashSnippet
	case Zsh:
		return zshSnippet
	case PowerShell:
		return powershellSnippet
	default:
		return ""
	}
}

const bashSnippet = `
__orbitx_prompt_start() { printf '\033]133;A\007'; }
__orbitx_prompt_end()   { printf '\033]133;B\007'; }
__orbitx_cmd_start()    { printf '\033]133;C\007'; }
__orbitx_cmd_end()      { printf '\033]133;D;%s\007' "$?"; }
__orbitx_cwd()          { printf '\033]7;file://%s%s\007' "$HOSTNAME" "$PWD"; }
PROMPT_COMMAND='__orbitx_cmd_end; __orbitx_cwd; __orbitx_prompt_start'"${PROMPT_COMMAND:+; $PROMPT_COMMAND}"
trap '__orbitx_cmd_start' DEBUG
PS1="$PS1"'$(__orbitx_prompt_end)'
`

const zshSnippet = `
__orbitx_prompt_start() { printf '\033]133;A\007'; }
__orbitx_prompt_end()   { printf '\033]133;B\007'; }
__orbitx_cmd_start()    { printf '\033]133;C\007'; }
__orbitx_cmd_end()      { printf '\033]133;D;%s\007' "$1"; }
__orbitx_cwd()          { printf '\033]7;file://%s%s\007' "$HOST" "$PWD"; }
precmd()  { __orbitx_cmd_end "$?"; __orbitx_cwd; __orbitx_prompt_start; }
preexec() { __orbitx_cmd_start; }
PS1="$PS1"'%{$(__orbitx_prompt_end)%}'
`

const powershellSnippet = `
function global:__orbitx_prompt_start { Write-Host -NoNewline "` + "`e]133;A`a" + `" }
function global:__orbitx_prompt_end   { Write-Host -NoNewline "` + "`e]133;B`a" + `" }
function global:__orbitx_cwd {
  Write-Host -NoNewline "` + "`e]7;file://$($env:COMPUTERNAME)$($PWD.Path)`a" + `"
}
$global:__OrbitXOriginalPrompt = $function:prompt
function global:prompt {
  Write-Host -NoNewline "` + "`e]133;D;0`a" + `"
  __orbitx_cwd
  __orbitx_prompt_start
  & $global:__OrbitXOriginalPrompt
  __orbitx_prompt_end
}
`

// State tracks one pane's shell-integration status (spec.md §3,
// ShellIntegrationState).
type State struct {
	Shell       ShellType
	Cwd         string
	Enabled     bool
	NodeVersion string

	sawCommandStart bool // 133;C seen, waiting for 133;D
}

// Parser incrementally scans a pane's raw output byte stream for OSC
// sequences, strips them, and updates State. It is not safe for concurrent
// use; one Parser belongs to exactly one pane's I/O handler goroutine.
type Parser struct {
	state *State
	// pending holds bytes that look like the start of an OSC sequence but
	// have not yet been terminated by BEL/ST, so they can't be classified
	// yet.
	pending []byte
}

func NewParser(state *State) *Parser {
	return &Parser{state: state}
}

// CwdChanged is returned by Feed when OSC 7 updated the pane's cwd, so the
// caller can emit a PaneCwdChanged notification without the parser needing
// to know about term.Notification.
type CwdChanged struct {
	Cwd string
}

// Feed consumes raw decoded text (already UTF-8 safe; the I/O handler does
// reframing before this), strips recognized OSC sequences, and returns the
// text to forward to the terminal display plus any cwd change observed.
func (p *Parser) Feed(text string) (forward string, cwdChanges []CwdChanged) {
	data := append(p.pending, text...)
	p.pending = nil

	var out strings.Builder
	i := 0
	for i < len(data) {
		if data[i] == 0x1b && i+1 < len(data) && data[i+1] == ']' {
			end, ok := findOSCEnd(data, i)
			if !ok {
				// Incomplete sequence — keep it for the next Feed call.
				p.pending = append(p.pending, data[i:]...)
				break
			}
			seq := data[i+2 : end] // between "]" and terminator
			if cwd, matched := p.handleOSC(string(seq)); matched {
				if cwd != "" {
					cwdChanges = append(cwdChanges, CwdChanged{Cwd: cwd})
				}
			} else {
				// Unrecognized OSC passes through per spec.md §6.
				out.WriteByte(data[i])
				out.Write(data[i+1 : end+1])
			}
			i = end + 1
			continue
		}
		out.WriteByte(data[i])
		i++
	}
	return out.String(), cwdChanges
}

// findOSCEnd finds the index of the OSC terminator (BEL 0x07, or ST "ESC
// \") starting the scan at start (the index of the ESC byte). Returns the
// terminator's index and true, or false if the sequence isn't terminated
// yet within data.
func findOSCEnd(data []byte, start int) (int, bool) {
	for j := start + 2; j < len(data); j++ {
		if data[j] == 0x07 {
			return j, true
		}
		if data[j] == 0x1b && j+1 < len(data) && data[j+1] == '\\' {
			return j + 1, true
		}
	}
	return 0, false
}

// handleOSC interprets the content between "ESC ]" and its terminator.
// Returns the new cwd (if any) and whether the sequence was recognized.
func (p *Parser) handleOSC(body string) (cwd string, recognized bool) {
	switch {
	case strings.HasPrefix(body, "133;A"):
		p.state.Enabled = true
		return "", true
	case strings.HasPrefix(body, "133;B"):
		p.state.Enabled = true
		return "", true
	case strings.HasPrefix(body, "133;C"):
		p.state.Enabled = true
		p.state.sawCommandStart = true
		return "", true
	case strings.HasPrefix(body, "133;D"):
		p.state.Enabled = true
		p.state.sawCommandStart = false
		// body is "133;D;<exit>"; exit code is parsed for callers who want
		// it but isn't surfaced by Feed today (no spec.md consumer needs
		// it yet beyond "command finished").
		parts := strings.SplitN(body, ";", 3)
		if len(parts) == 3 {
			_, _ = strconv.Atoi(parts[2])
		}
		return "", true
	case strings.HasPrefix(body, "7;"):
		p.state.Enabled = true
		uri := strings.TrimPrefix(body, "7;")
		path := stripFileURI(uri)
		p.state.Cwd = path
		return path, true
	case strings.HasPrefix(body, "1337;OrbitXNodeVersion="):
		p.state.Enabled = true
		p.state.NodeVersion = strings.TrimPrefix(body, "1337;OrbitXNodeVersion=")
		return "", true
	default:
		return "", false
	}
}

// stripFileURI converts "file://host/path" to "/path", per spec.md's OSC 7
// table ("ESC ] 7 ; file://host/path BEL").
func stripFileURI(uri string) string {
	if !strings.HasPrefix(uri, "file://") {
		return uri
	}
	rest := strings.TrimPrefix(uri, "file://")
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		return rest[idx:]
	}
	return fmt.Sprintf("/%s", rest)
}
