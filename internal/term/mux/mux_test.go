package mux

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/orbitx-dev/orbitx/internal/orbiterr"
	"github.com/orbitx-dev/orbitx/internal/term"
)

// fakeBackend is an in-memory PaneBackend for exercising the Mux without a
// real PTY, following the teacher's preference for hand-rolled fakes over a
// mocking library (its own internal/mocks only mocks narrow interfaces).
type fakeBackend struct {
	mu     sync.Mutex
	output chan []byte
	size   term.PtySize
	dead   bool
	writes [][]byte
}

func newFakeBackend(size term.PtySize) *fakeBackend {
	return &fakeBackend{output: make(chan []byte, 16), size: size}
}

func (f *fakeBackend) Write(p []byte) (int, error) {
	f.mu.Lock()
	f.writes = append(f.writes, append([]byte{}, p...))
	f.mu.Unlock()
	return len(p), nil
}

func (f *fakeBackend) Read(p []byte) (int, error) {
	b, ok := <-f.output
	if !ok {
		return 0, io.EOF
	}
	n := copy(p, b)
	return n, nil
}

func (f *fakeBackend) Resize(s term.PtySize) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.size = s
	return nil
}
func (f *fakeBackend) Size() term.PtySize { f.mu.Lock(); defer f.mu.Unlock(); return f.size }
func (f *fakeBackend) Kill() error         { close(f.output); f.MarkDead(); return nil }
func (f *fakeBackend) MarkDead()           { f.mu.Lock(); f.dead = true; f.mu.Unlock() }
func (f *fakeBackend) Dead() bool          { f.mu.Lock(); defer f.mu.Unlock(); return f.dead }

func spawnFake(backend *fakeBackend) SpawnFunc {
	return func(env []string, cwd string, size term.PtySize) (PaneBackend, error) {
		return backend, nil
	}
}

func drain(t *testing.T, ch <-chan term.Notification, want term.NotificationKind) term.Notification {
	t.Helper()
	select {
	case n := <-ch:
		if n.Kind != want {
			t.Fatalf("want notification kind %v, got %v", want, n.Kind)
		}
		return n
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for notification kind %v", want)
	}
	return term.Notification{}
}

func TestCreatePaneEmitsPaneAdded(t *testing.T) {
	m := New()
	_, ch := m.Subscribe()

	backend := newFakeBackend(term.PtySize{Rows: 24, Cols: 80})
	id, err := m.CreatePane(spawnFake(backend), nil, "", term.PtySize{Rows: 24, Cols: 80})
	if err != nil {
		t.Fatalf("CreatePane: %v", err)
	}
	if id == 0 {
		t.Fatalf("want nonzero pane id")
	}
	drain(t, ch, term.PaneAdded)
}

func TestWriteToDeadPaneFailsWithPaneDead(t *testing.T) {
	m := New()
	backend := newFakeBackend(term.PtySize{})
	id, _ := m.CreatePane(spawnFake(backend), nil, "", term.PtySize{Rows: 24, Cols: 80})
	backend.MarkDead()

	err := m.WriteToPane(id, []byte("hi"))
	if err == nil {
		t.Fatalf("want error writing to dead pane")
	}
	if kind, ok := orbiterr.KindOf(err); !ok || kind != orbiterr.KindPaneDead {
		t.Fatalf("want PaneDead kind, got %v (ok=%v)", kind, ok)
	}
}

func TestWriteToUnknownPaneFailsWithPaneNotFound(t *testing.T) {
	m := New()
	err := m.WriteToPane(999, []byte("hi"))
	if kind, ok := orbiterr.KindOf(err); !ok || kind != orbiterr.KindPaneNotFound {
		t.Fatalf("want PaneNotFound kind, got %v (ok=%v)", kind, ok)
	}
}

func TestSetActivePanePersistsUntilOverwritten(t *testing.T) {
	m := New()
	m.SetActivePane(7)
	got, ok := m.GetActivePane()
	if !ok || got != 7 {
		t.Fatalf("want active pane 7, got %v (ok=%v)", got, ok)
	}
	m.SetActivePane(9)
	got, ok = m.GetActivePane()
	if !ok || got != 9 {
		t.Fatalf("want active pane overwritten to 9, got %v", got)
	}
	m.ClearActivePane()
	if _, ok := m.GetActivePane(); ok {
		t.Fatalf("want no active pane after clear")
	}
}

func TestRemovePaneIsIdempotent(t *testing.T) {
	m := New()
	backend := newFakeBackend(term.PtySize{})
	id, _ := m.CreatePane(spawnFake(backend), nil, "", term.PtySize{Rows: 24, Cols: 80})

	if err := m.RemovePane(id); err != nil {
		t.Fatalf("first RemovePane: %v", err)
	}
	if err := m.RemovePane(id); err != nil {
		t.Fatalf("second RemovePane (idempotent) should not error: %v", err)
	}
	if m.PaneCount() != 0 {
		t.Fatalf("want 0 panes after removal, got %d", m.PaneCount())
	}
}
