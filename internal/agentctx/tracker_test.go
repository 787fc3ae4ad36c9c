package agentctx

import (
	"testing"
	"time"

	"github.com/orbitx-dev/orbitx/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// seedConversation inserts a conversations row with the given id, satisfying
// file_context's foreign key, and returns the id for convenience.
func seedConversation(t *testing.T, s *store.Store, id string) string {
	t.Helper()
	now := time.Now().UTC()
	if err := s.Conversations().Save(store.Conversation{ID: id, Title: "t", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("seedConversation: %v", err)
	}
	return id
}

// seedSession inserts a sessions row under conversationID, satisfying
// messages' foreign key, and returns the id for convenience.
func seedSession(t *testing.T, s *store.Store, id, conversationID string) string {
	t.Helper()
	if err := s.Sessions().Save(store.Session{ID: id, ConversationID: conversationID, CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("seedSession: %v", err)
	}
	return id
}

func TestNormalizePathRelativizesUnderRoot(t *testing.T) {
	got := NormalizePath("/work/proj", "/work/proj/internal/foo.go")
	if got != "internal/foo.go" {
		t.Fatalf("NormalizePath = %q, want internal/foo.go", got)
	}
}

func TestNormalizePathRetainsAbsoluteOutsideRoot(t *testing.T) {
	got := NormalizePath("/work/proj", "/etc/passwd")
	if got != "/etc/passwd" {
		t.Fatalf("NormalizePath = %q, want /etc/passwd retained", got)
	}
}

func TestNormalizePathRetainsRelativeInput(t *testing.T) {
	got := NormalizePath("/work/proj", "internal/foo.go")
	if got != "internal/foo.go" {
		t.Fatalf("NormalizePath = %q, want unchanged relative path", got)
	}
}

func TestTrackerRecordReadToolMarksActive(t *testing.T) {
	s := openTestStore(t)
	tr := NewTracker(s.FileContext())
	seedConversation(t, s, "conv1")

	if err := tr.Record("conv1", "", "internal/foo.go", store.SourceReadTool, nil); err != nil {
		t.Fatalf("Record: %v", err)
	}
	entry, ok, err := s.FileContext().Find("conv1", "internal/foo.go")
	if err != nil || !ok {
		t.Fatalf("Find: ok=%v err=%v", ok, err)
	}
	if entry.State != store.FileActive {
		t.Errorf("State = %v, want Active", entry.State)
	}
	if entry.AgentReadAt == nil {
		t.Error("AgentReadAt not set")
	}
}

func TestTrackerRecordUserEditedMarksStaleAndTracksModified(t *testing.T) {
	s := openTestStore(t)
	tr := NewTracker(s.FileContext())
	seedConversation(t, s, "conv1")

	if err := tr.Record("conv1", "", "internal/foo.go", store.SourceUserEdited, nil); err != nil {
		t.Fatalf("Record: %v", err)
	}
	entry, ok, err := s.FileContext().Find("conv1", "internal/foo.go")
	if err != nil || !ok {
		t.Fatalf("Find: ok=%v err=%v", ok, err)
	}
	if entry.State != store.FileStale {
		t.Errorf("State = %v, want Stale", entry.State)
	}
	modified := tr.DrainRecentlyModified()
	if len(modified) != 1 || modified[0] != "internal/foo.go" {
		t.Fatalf("DrainRecentlyModified = %v, want [internal/foo.go]", modified)
	}
	// Drain clears the set.
	if again := tr.DrainRecentlyModified(); len(again) != 0 {
		t.Fatalf("second DrainRecentlyModified = %v, want empty", again)
	}
}

func TestTrackerRecordAgentEditedClearsUserModifiedAndMarksAgentEdit(t *testing.T) {
	s := openTestStore(t)
	tr := NewTracker(s.FileContext())
	seedConversation(t, s, "conv1")

	if err := tr.Record("conv1", "", "a.go", store.SourceUserEdited, nil); err != nil {
		t.Fatalf("Record (user): %v", err)
	}
	if err := tr.Record("conv1", "", "a.go", store.SourceAgentEdited, nil); err != nil {
		t.Fatalf("Record (agent): %v", err)
	}

	if mod := tr.DrainRecentlyModified(); len(mod) != 0 {
		t.Fatalf("DrainRecentlyModified = %v, want empty after agent edit clears it", mod)
	}
	edits := tr.DrainRecentlyAgentEdits()
	if len(edits) != 1 || edits[0] != "a.go" {
		t.Fatalf("DrainRecentlyAgentEdits = %v, want [a.go]", edits)
	}

	entry, ok, err := s.FileContext().Find("conv1", "a.go")
	if err != nil || !ok {
		t.Fatalf("Find: ok=%v err=%v", ok, err)
	}
	if entry.State != store.FileActive {
		t.Errorf("State = %v, want Active", entry.State)
	}
	if entry.AgentEditAt == nil {
		t.Error("AgentEditAt not set")
	}
}

func TestTrackerRecordFileMentionedKeepsExistingState(t *testing.T) {
	s := openTestStore(t)
	tr := NewTracker(s.FileContext())
	seedConversation(t, s, "conv1")

	if err := tr.Record("conv1", "", "a.go", store.SourceUserEdited, nil); err != nil {
		t.Fatalf("Record (user): %v", err)
	}
	if err := tr.Record("conv1", "", "a.go", store.SourceFileMentioned, nil); err != nil {
		t.Fatalf("Record (mentioned): %v", err)
	}
	entry, _, err := s.FileContext().Find("conv1", "a.go")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if entry.State != store.FileStale {
		t.Errorf("State = %v, want Stale preserved by FileMentioned", entry.State)
	}
}

func TestTrackerRecordFileMentionedDefaultsToActiveForNewEntry(t *testing.T) {
	s := openTestStore(t)
	tr := NewTracker(s.FileContext())
	seedConversation(t, s, "conv1")

	if err := tr.Record("conv1", "", "new.go", store.SourceFileMentioned, nil); err != nil {
		t.Fatalf("Record: %v", err)
	}
	entry, ok, err := s.FileContext().Find("conv1", "new.go")
	if err != nil || !ok {
		t.Fatalf("Find: ok=%v err=%v", ok, err)
	}
	if entry.State != store.FileActive {
		t.Errorf("State = %v, want Active for a previously-untracked mention", entry.State)
	}
}

func TestTrackerRecordStateOverrideWins(t *testing.T) {
	s := openTestStore(t)
	tr := NewTracker(s.FileContext())
	seedConversation(t, s, "conv1")

	override := store.FileStale
	if err := tr.Record("conv1", "", "a.go", store.SourceReadTool, &override); err != nil {
		t.Fatalf("Record: %v", err)
	}
	entry, _, err := s.FileContext().Find("conv1", "a.go")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if entry.State != store.FileStale {
		t.Errorf("State = %v, want Stale (override should win over ReadTool's Active)", entry.State)
	}
}

func TestTrackerActiveOrStaleFiltersOtherStates(t *testing.T) {
	s := openTestStore(t)
	tr := NewTracker(s.FileContext())
	seedConversation(t, s, "conv1")

	if err := tr.Record("conv1", "", "active.go", store.SourceReadTool, nil); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := tr.Record("conv1", "", "stale.go", store.SourceUserEdited, nil); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := tr.ActiveOrStale("conv1")
	if err != nil {
		t.Fatalf("ActiveOrStale: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
}
