// Package snapshot implements spec.md §4.5 component G: an atomic
// MessagePack snapshot of a session's in-memory state (ring buffer contents,
// pending iteration, active file sets). react.Executor writes one per
// iteration; in this module it is read back only to log the state on resume,
// and history is still rebuilt from the Repository. Grounded
// on the teacher's write-temp-then-rename durability convention, extended
// here to a typed payload serialized with vmihailenco/msgpack/v5 instead of
// JSON so the on-disk form is compact and round-trips binary data cleanly.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// SessionState is the data one snapshot file captures for a session —
// enough to rehydrate an agentctx.ContextBuilder/react.Executor pair
// without re-reading the whole message history from the Repository.
type SessionState struct {
	SessionID        string         `msgpack:"session_id"`
	ExecutionID      string         `msgpack:"execution_id,omitempty"`
	RingMessages     []RawMessage   `msgpack:"ring_messages"`
	RecentlyModified []string       `msgpack:"recently_modified"`
	RecentlyEdited   []string       `msgpack:"recently_agent_edits"`
	IterationCount   int            `msgpack:"iteration_count"`
	EmptyCount       int            `msgpack:"empty_count"`
	Extra            map[string]any `msgpack:"extra,omitempty"`
}

// RawMessage is a minimal (role, content) pair — the ring buffer only needs
// enough to rebuild prompt context, not the full block structure the
// Repository persists.
type RawMessage struct {
	Role    string `msgpack:"role"`
	Content string `msgpack:"content"`
}

// Write atomically serializes state to path: it writes to path+".tmp" in
// the same directory, then renames over path, so a crash mid-write never
// leaves a corrupt snapshot in place (the teacher's write-temp-then-rename
// convention, applied to msgpack bytes instead of JSON/text).
func Write(path string, state SessionState) error {
	data, err := msgpack.Marshal(state)
	if err != nil {
		return fmt.Errorf("snapshot.Write: marshal: %w", err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("snapshot.Write: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("snapshot.Write: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("snapshot.Write: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("snapshot.Write: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("snapshot.Write: rename: %w", err)
	}
	return nil
}

// Read deserializes a snapshot previously written with Write.
func Read(path string) (SessionState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SessionState{}, fmt.Errorf("snapshot.Read: %w", err)
	}
	var state SessionState
	if err := msgpack.Unmarshal(data, &state); err != nil {
		return SessionState{}, fmt.Errorf("snapshot.Read: unmarshal: %w", err)
	}
	return state, nil
}
