// Package mux implements the process-wide Terminal Mux (spec.md §4.2): a
// registry of PTY-backed panes with a typed broadcast notification bus.
// Subscribers get one bounded channel each; a slow subscriber drops its
// oldest buffered notification rather than blocking the dispatch goroutine,
// per spec.md §9's explicit guidance ("typed broadcast channel with bounded
// lag handling... dropped-slow-subscriber is acceptable because PaneOutput
// is best-effort display data"). Grounded on the subscriber-callback shape
// of the teacher's internal/ws client, reworked from a single connection's
// read loop into a multi-subscriber fan-out.
package mux

import (
	"fmt"
	"sync"

	"github.com/orbitx-dev/orbitx/internal/orbiterr"
	"github.com/orbitx-dev/orbitx/internal/shellintegration"
	"github.com/orbitx-dev/orbitx/internal/term"
	"github.com/orbitx-dev/orbitx/internal/term/ioloop"
)

const subscriberBufferSize = 256

// PaneBackend is the subset of ptybackend.Backend's surface the Mux needs.
// Declaring it here (rather than depending on the ptybackend package
// directly) keeps CreatePane testable with a fake, and matches spec.md's
// framing of the PTY backend as a capability interface (§4.1, §9).
type PaneBackend interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	Resize(term.PtySize) error
	Size() term.PtySize
	Kill() error
	MarkDead()
	Dead() bool
}

// pane is the Mux's internal record; spec.md §3 calls this "Pane". Only the
// Mux mutates it, per the ownership summary ("Mux exclusively owns pane
// objects").
type pane struct {
	id          term.PaneID
	backend     PaneBackend
	size        term.PtySize
	cwd         string
	shellState  *shellintegration.State
}

// Subscriber is an opaque handle returned by Subscribe, used with
// Unsubscribe.
type Subscriber uint64

// Mux is the process-wide pane registry and notification bus. The zero
// value is not usable; construct with New.
type Mux struct {
	mu    sync.RWMutex
	panes map[term.PaneID]*pane
	order []term.PaneID // registration order, for list_panes

	subMu     sync.Mutex
	subs      map[Subscriber]chan term.Notification
	nextSubID Subscriber

	activeMu sync.RWMutex
	active   term.PaneID
	hasActive bool
}

// New constructs an empty Mux.
func New() *Mux {
	return &Mux{
		panes: make(map[term.PaneID]*pane),
		subs:  make(map[Subscriber]chan term.Notification),
	}
}

// SpawnFunc abstracts PTY process creation so CreatePane can be exercised in
// tests without spawning a real shell. Production callers pass a function
// wrapping ptybackend.Spawn.
type SpawnFunc func(env []string, cwd string, size term.PtySize) (PaneBackend, error)

// CreatePane spawns a new pane via spawn, registers it, launches its reader
// loop, and emits PaneAdded. Matches spec.md's create_pane operation.
func (m *Mux) CreatePane(spawn SpawnFunc, env []string, cwd string, size term.PtySize) (term.PaneID, error) {
	backend, err := spawn(env, cwd, size)
	if err != nil {
		return 0, orbiterr.Wrap(orbiterr.KindPtySpawnFailed, "mux.CreatePane", err)
	}

	id := term.NextPaneID()
	p := &pane{
		id:         id,
		backend:    backend,
		size:       size,
		cwd:        cwd,
		shellState: &shellintegration.State{},
	}

	m.mu.Lock()
	m.panes[id] = p
	m.order = append(m.order, id)
	m.mu.Unlock()

	loop := ioloop.New(id, backend, m, shellintegration.NewParser(p.shellState), 0)
	go loop.Run()

	m.Publish(term.NewPaneAdded(id))
	return id, nil
}

// WriteToPane writes bytes to the pane's PTY, failing with PaneNotFound or
// PaneDead.
func (m *Mux) WriteToPane(id term.PaneID, data []byte) error {
	p, err := m.lookup(id)
	if err != nil {
		return err
	}
	if p.backend.Dead() {
		return orbiterr.New(orbiterr.KindPaneDead, "mux.WriteToPane", nil)
	}
	if _, err := p.backend.Write(data); err != nil {
		return fmt.Errorf("mux.WriteToPane: %w", err)
	}
	return nil
}

// ResizePane resizes the underlying PTY and stores the new size, emitting
// PaneResized.
func (m *Mux) ResizePane(id term.PaneID, size term.PtySize) error {
	p, err := m.lookup(id)
	if err != nil {
		return err
	}
	if err := p.backend.Resize(size); err != nil {
		return fmt.Errorf("mux.ResizePane: %w", err)
	}
	m.mu.Lock()
	p.size = size
	m.mu.Unlock()
	m.Publish(term.NewPaneResized(id, size))
	return nil
}

// RemovePane kills the pane's child process and emits PaneRemoved. It is
// idempotent: removing an already-removed pane is a no-op.
func (m *Mux) RemovePane(id term.PaneID) error {
	m.mu.Lock()
	p, ok := m.panes[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.panes, id)
	for i, pid := range m.order {
		if pid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	if err := p.backend.Kill(); err != nil {
		return fmt.Errorf("mux.RemovePane: %w", err)
	}
	m.Publish(term.NewPaneRemoved(id))
	return nil
}

// GetPane reports whether a pane with id is registered.
func (m *Mux) GetPane(id term.PaneID) (exists bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.panes[id]
	return ok
}

// ListPanes returns all live pane ids in registration order.
func (m *Mux) ListPanes() []term.PaneID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]term.PaneID, len(m.order))
	copy(out, m.order)
	return out
}

// PaneCount returns the number of live panes.
func (m *Mux) PaneCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.panes)
}

func (m *Mux) lookup(id term.PaneID) (*pane, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.panes[id]
	if !ok {
		return nil, orbiterr.New(orbiterr.KindPaneNotFound, "mux.lookup", nil)
	}
	return p, nil
}

// SetActivePane records the given pane as active; GetActivePane returns it
// until overwritten or cleared (spec.md §8 invariant).
func (m *Mux) SetActivePane(id term.PaneID) {
	m.activeMu.Lock()
	defer m.activeMu.Unlock()
	m.active = id
	m.hasActive = true
}

// ClearActivePane clears the active pane, if any.
func (m *Mux) ClearActivePane() {
	m.activeMu.Lock()
	defer m.activeMu.Unlock()
	m.hasActive = false
}

// GetActivePane returns the most recently set active pane and whether one
// is set.
func (m *Mux) GetActivePane() (term.PaneID, bool) {
	m.activeMu.RLock()
	defer m.activeMu.RUnlock()
	return m.active, m.hasActive
}

// Subscribe registers a new notification subscriber and returns its handle
// and channel. Publish notifies subscribers in no particular order.
func (m *Mux) Subscribe() (Subscriber, <-chan term.Notification) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	id := m.nextSubID
	m.nextSubID++
	ch := make(chan term.Notification, subscriberBufferSize)
	m.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel. Returns false if
// the subscriber was already removed.
func (m *Mux) Unsubscribe(id Subscriber) bool {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	ch, ok := m.subs[id]
	if !ok {
		return false
	}
	delete(m.subs, id)
	close(ch)
	return true
}

// Publish fans a notification out to every subscriber, in no particular
// order across subscribers. This satisfies ioloop.Publisher. A full subscriber channel has its
// oldest buffered notification dropped to make room, rather than blocking
// this call — PaneOutput is best-effort display data (spec.md §9).
func (m *Mux) Publish(n term.Notification) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- n:
		default:
			// Channel full: drop the oldest buffered notification, then
			// retry once. If it's still full (a concurrent fill raced us)
			// give up silently rather than block the dispatcher.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- n:
			default:
			}
		}
	}
}
