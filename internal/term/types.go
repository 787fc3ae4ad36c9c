// Package term holds the identity and notification value types shared by
// the PTY backend, the I/O handler, and the Mux (spec.md §3, component A).
// It deliberately carries no behavior of its own beyond the notification
// tag discipline: a Notification is a closed variant, not a stringly-typed
// envelope like the teacher's internal/ws.Envelope, so a switch over Kind
// is exhaustive-checkable by a linter and payload fields are typed instead
// of being squeezed into a single json.RawMessage.
package term

import "sync/atomic"

// PaneID identifies one multiplexed pane. Ids are monotonically increasing
// for the lifetime of the process; they are never reused.
type PaneID uint32

// idCounter hands out monotonic PaneIDs. Zero is reserved as "no pane".
var idCounter atomic.Uint32

// NextPaneID returns the next unused PaneID. Exported so Mux (and tests)
// can allocate ids without importing an internal counter type.
func NextPaneID() PaneID {
	return PaneID(idCounter.Add(1))
}

// PtySize is the terminal geometry of a pane.
type PtySize struct {
	Rows uint16
	Cols uint16
}

// NotificationKind tags the payload carried by a Notification.
type NotificationKind int

const (
	PaneAdded NotificationKind = iota
	PaneRemoved
	PaneOutput
	PaneResized
	PaneExited
	PaneCwdChanged
)

func (k NotificationKind) String() string {
	switch k {
	case PaneAdded:
		return "PaneAdded"
	case PaneRemoved:
		return "PaneRemoved"
	case PaneOutput:
		return "PaneOutput"
	case PaneResized:
		return "PaneResized"
	case PaneExited:
		return "PaneExited"
	case PaneCwdChanged:
		return "PaneCwdChanged"
	default:
		return "Unknown"
	}
}

// Notification is the closed tagged variant from spec.md §3
// (MuxNotification): exactly one of the payload fields is meaningful,
// selected by Kind. Constructors below are the only supported way to build
// one, so callers cannot produce an inconsistent Kind/payload pairing.
type Notification struct {
	Kind NotificationKind
	Pane PaneID

	// PaneOutput
	Bytes []byte
	// PaneResized
	Size PtySize
	// PaneExited
	ExitCode    int
	HasExitCode bool
	// PaneCwdChanged
	Cwd string
}

func NewPaneAdded(id PaneID) Notification { return Notification{Kind: PaneAdded, Pane: id} }
func NewPaneRemoved(id PaneID) Notification { return Notification{Kind: PaneRemoved, Pane: id} }

func NewPaneOutput(id PaneID, b []byte) Notification {
	return Notification{Kind: PaneOutput, Pane: id, Bytes: b}
}

func NewPaneResized(id PaneID, size PtySize) Notification {
	return Notification{Kind: PaneResized, Pane: id, Size: size}
}

func NewPaneExited(id PaneID, exitCode int, has bool) Notification {
	return Notification{Kind: PaneExited, Pane: id, ExitCode: exitCode, HasExitCode: has}
}

func NewPaneCwdChanged(id PaneID, cwd string) Notification {
	return Notification{Kind: PaneCwdChanged, Pane: id, Cwd: cwd}
}
