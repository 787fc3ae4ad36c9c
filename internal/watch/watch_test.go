package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/orbitx-dev/orbitx/internal/agentctx"
	"github.com/orbitx-dev/orbitx/internal/store"
)

func TestWatcherRecordsExternalWriteAsUserEdited(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "main.go")
	if err := os.WriteFile(target, []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer s.Close()
	tracker := agentctx.NewTracker(s.FileContext())
	now := time.Now().UTC()
	if err := s.Conversations().Save(store.Conversation{ID: "conversation-1", Title: "t", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("save conversation: %v", err)
	}

	w, err := New(root, func() string { return "conversation-1" }, tracker)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(target, []byte("package main\n\nfunc main() {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		entry, ok, err := s.FileContext().Find("conversation-1", "main.go")
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if ok && entry.State == store.FileStale {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("external write was never recorded as a UserEdited/Stale entry")
}
