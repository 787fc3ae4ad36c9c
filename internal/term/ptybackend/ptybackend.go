// Package ptybackend wraps github.com/creack/pty to spawn a shell behind a
// real OS pseudo-terminal, following the spawn/resize pattern in the
// teacher's internal/egg/server.go (pty.StartWithSize, Winsize resizes,
// graceful SIGTERM on cancel) generalized to a plain per-pane Backend
// rather than a sandboxed subprocess-RPC session.
package ptybackend

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/orbitx-dev/orbitx/internal/orbiterr"
	"github.com/orbitx-dev/orbitx/internal/term"
)

// Backend is one spawned PTY-backed shell process (spec.md §4.1).
type Backend struct {
	mu   sync.Mutex
	ptmx *os.File
	cmd  *exec.Cmd
	size term.PtySize
	dead atomic.Bool
}

// Spawn starts shellPath with the given args and environment inside a new
// PTY of the given size. env and args are used verbatim; the shell
// integration snippet arrives through them, pointing at the snippet file
// that shellintegration.Inject caches on disk. Spawn itself writes no files
// and removes none on exit.
func Spawn(shellPath string, args []string, env []string, cwd string, size term.PtySize) (*Backend, error) {
	cmd := exec.Command(shellPath, args...)
	cmd.Env = env
	if cwd != "" {
		cmd.Dir = cwd
	}
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 5 * time.Second

	winsize := &pty.Winsize{Rows: size.Rows, Cols: size.Cols}
	ptmx, err := pty.StartWithSize(cmd, winsize)
	if err != nil {
		return nil, orbiterr.Wrap(orbiterr.KindPtySpawnFailed, "ptybackend.Spawn", err)
	}

	b := &Backend{ptmx: ptmx, cmd: cmd, size: size}
	go b.waitForExit()
	return b, nil
}

func (b *Backend) waitForExit() {
	_ = b.cmd.Wait()
	b.dead.Store(true)
}

// Write writes to the PTY master, i.e. the shell's stdin. Fails with
// PaneDead if the process has already exited.
func (b *Backend) Write(p []byte) (int, error) {
	if b.Dead() {
		return 0, orbiterr.New(orbiterr.KindPaneDead, "ptybackend.Write", nil)
	}
	n, err := b.ptmx.Write(p)
	if err != nil {
		return n, orbiterr.Wrap(orbiterr.KindIoWrite, "ptybackend.Write", err)
	}
	return n, nil
}

// Read reads raw shell output from the PTY master. Returns io.EOF-wrapping
// behavior from the underlying *os.File on child exit; callers should treat
// any read error as "the pane is no longer producing data" and check Dead.
func (b *Backend) Read(p []byte) (int, error) {
	n, err := b.ptmx.Read(p)
	if err != nil {
		return n, orbiterr.Wrap(orbiterr.KindIoRead, "ptybackend.Read", err)
	}
	return n, nil
}

// Resize updates both the OS PTY window size and the cached Size().
func (b *Backend) Resize(size term.PtySize) error {
	if b.Dead() {
		return orbiterr.New(orbiterr.KindPaneDead, "ptybackend.Resize", nil)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := pty.Setsize(b.ptmx, &pty.Winsize{Rows: size.Rows, Cols: size.Cols}); err != nil {
		return orbiterr.Wrap(orbiterr.KindIoWrite, "ptybackend.Resize", err)
	}
	b.size = size
	return nil
}

// Size returns the most recently applied geometry.
func (b *Backend) Size() term.PtySize {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Kill terminates the child process and closes the PTY master.
func (b *Backend) Kill() error {
	b.MarkDead()
	if b.cmd.Process != nil {
		_ = b.cmd.Process.Signal(syscall.SIGTERM)
	}
	if err := b.ptmx.Close(); err != nil {
		return fmt.Errorf("ptybackend.Kill: %w", err)
	}
	return nil
}

// MarkDead flags the backend as dead without touching the OS process;
// used by the I/O handler when a read returns EOF.
func (b *Backend) MarkDead() { b.dead.Store(true) }

// Dead reports whether the backend has exited or been killed.
func (b *Backend) Dead() bool { return b.dead.Load() }
