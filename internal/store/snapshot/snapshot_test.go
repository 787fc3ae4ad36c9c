package snapshot

import (
	"path/filepath"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session-1.snapshot")

	want := SessionState{
		SessionID:        "session-1",
		ExecutionID:      "exec-1",
		RingMessages:     []RawMessage{{Role: "user", Content: "hello"}, {Role: "assistant", Content: "hi"}},
		RecentlyModified: []string{"a.go"},
		RecentlyEdited:   []string{"b.go"},
		IterationCount:   3,
		EmptyCount:       1,
	}
	if err := Write(path, want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.SessionID != want.SessionID || got.ExecutionID != want.ExecutionID {
		t.Fatalf("ids = %+v, want %+v", got, want)
	}
	if len(got.RingMessages) != 2 || got.RingMessages[1].Content != "hi" {
		t.Fatalf("ring messages = %+v", got.RingMessages)
	}
	if len(got.RecentlyModified) != 1 || got.RecentlyModified[0] != "a.go" {
		t.Fatalf("recently modified = %v", got.RecentlyModified)
	}
	if got.IterationCount != 3 {
		t.Fatalf("iteration count = %d, want 3", got.IterationCount)
	}
}

func TestWriteOverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session-2.snapshot")

	if err := Write(path, SessionState{SessionID: "session-2", IterationCount: 1}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := Write(path, SessionState{SessionID: "session-2", IterationCount: 2}); err != nil {
		t.Fatalf("second write: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.IterationCount != 2 {
		t.Fatalf("iteration count = %d, want 2", got.IterationCount)
	}
}

func TestReadMissingFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := Read(filepath.Join(dir, "missing.snapshot")); err == nil {
		t.Fatal("expected error reading a missing snapshot")
	}
}
