package agentctx

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/orbitx-dev/orbitx/internal/store"
)

func TestFormatAge(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{42 * time.Second, "42s ago"},
		{3 * time.Minute, "3m ago"},
		{2 * time.Hour, "2h ago"},
		{4 * 24 * time.Hour, "4d ago"},
	}
	for _, c := range cases {
		if got := formatAge(c.d); got != c.want {
			t.Errorf("formatAge(%v) = %q, want %q", c.d, got, c.want)
		}
	}
}

func TestFileAwarenessSkipsWhenNoRecentOverlap(t *testing.T) {
	s := openTestStore(t)
	tr := NewTracker(s.FileContext())
	seedConversation(t, s, "conv1")
	b := NewContextBuilder(s.Messages(), s.MessageBlocks(), tr, nil, DefaultBuilderConfig())

	if err := tr.Record("conv1", "", "a.go", store.SourceReadTool, nil); err != nil {
		t.Fatalf("Record: %v", err)
	}
	text, ok, err := b.FileAwareness("conv1", []string{"unrelated.go"})
	if err != nil {
		t.Fatalf("FileAwareness: %v", err)
	}
	if ok || text != "" {
		t.Fatalf("FileAwareness = (%q, %v), want empty/false when no overlap", text, ok)
	}
}

func TestFileAwarenessIncludesOverlappingFiles(t *testing.T) {
	s := openTestStore(t)
	tr := NewTracker(s.FileContext())
	seedConversation(t, s, "conv1")
	b := NewContextBuilder(s.Messages(), s.MessageBlocks(), tr, nil, DefaultBuilderConfig())

	if err := tr.Record("conv1", "", "a.go", store.SourceReadTool, nil); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := tr.Record("conv1", "", "b.go", store.SourceUserEdited, nil); err != nil {
		t.Fatalf("Record: %v", err)
	}

	text, ok, err := b.FileAwareness("conv1", []string{"a.go", "b.go"})
	if err != nil {
		t.Fatalf("FileAwareness: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	if !strings.Contains(text, "a.go") || !strings.Contains(text, "b.go") {
		t.Errorf("text = %q, want both files mentioned", text)
	}
	if !strings.Contains(text, "Active") || !strings.Contains(text, "Stale") {
		t.Errorf("text = %q, want both states mentioned", text)
	}
}

func TestFileAwarenessClampsToMaxChars(t *testing.T) {
	s := openTestStore(t)
	tr := NewTracker(s.FileContext())
	seedConversation(t, s, "conv1")
	cfg := DefaultBuilderConfig()
	cfg.MaxFileContextChars = 40
	b := NewContextBuilder(s.Messages(), s.MessageBlocks(), tr, nil, cfg)

	var recent []string
	for i := 0; i < 20; i++ {
		path := strings.Repeat("x", 10) + string(rune('a'+i)) + ".go"
		if err := tr.Record("conv1", "", path, store.SourceReadTool, nil); err != nil {
			t.Fatalf("Record: %v", err)
		}
		recent = append(recent, path)
	}

	text, ok, err := b.FileAwareness("conv1", recent)
	if err != nil {
		t.Fatalf("FileAwareness: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	if len(text) > cfg.MaxFileContextChars {
		t.Errorf("len(text) = %d, want <= %d", len(text), cfg.MaxFileContextChars)
	}
}

func TestCompressProducesSummaryMessagePrependedToTail(t *testing.T) {
	s := openTestStore(t)
	tr := NewTracker(s.FileContext())
	seedConversation(t, s, "conv1")
	b := NewContextBuilder(s.Messages(), s.MessageBlocks(), tr, nil, DefaultBuilderConfig())

	sessionID := "sess1"
	seedSession(t, s, sessionID, "conv1")
	for i := 0; i < 5; i++ {
		seq, err := s.Messages().NextSeq(sessionID)
		if err != nil {
			t.Fatalf("NextSeq: %v", err)
		}
		m := store.Message{
			ID:        "m" + string(rune('0'+i)),
			SessionID: sessionID,
			Role:      store.RoleUser,
			Seq:       seq,
			Status:    store.MessageCompleted,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.Messages().Save(m); err != nil {
			t.Fatalf("Save message: %v", err)
		}
		blk := store.MessageBlock{
			ID:        m.ID + "-b",
			MessageID: m.ID,
			Kind:      store.BlockText,
			Content:   "message body",
		}
		if err := s.MessageBlocks().Save(blk); err != nil {
			t.Fatalf("Save block: %v", err)
		}
	}

	summary, err := b.Compress(context.Background(), sessionID, 2)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if !summary.IsSummary {
		t.Error("summary.IsSummary = false, want true")
	}
	if summary.Role != store.RoleSystem {
		t.Errorf("summary.Role = %v, want System", summary.Role)
	}

	all, err := s.Messages().FindBySession(sessionID)
	if err != nil {
		t.Fatalf("FindBySession: %v", err)
	}
	// 5 originals + 1 summary.
	if len(all) != 6 {
		t.Fatalf("len(all) = %d, want 6", len(all))
	}
	if all[len(all)-1].ID != summary.ID {
		t.Errorf("summary should sort last by seq (NextSeq is monotonic)")
	}
}

func TestCompressErrorsWhenNothingToCompress(t *testing.T) {
	s := openTestStore(t)
	tr := NewTracker(s.FileContext())
	seedConversation(t, s, "conv1")
	b := NewContextBuilder(s.Messages(), s.MessageBlocks(), tr, nil, DefaultBuilderConfig())

	if _, err := b.Compress(context.Background(), "empty-session", 5); err == nil {
		t.Fatal("expected error when keepTail >= message count")
	}
}

func TestNeedsCompressionReflectsTokenEstimate(t *testing.T) {
	s := openTestStore(t)
	tr := NewTracker(s.FileContext())
	seedConversation(t, s, "conv1")
	cfg := DefaultBuilderConfig()
	cfg.MaxTokens = 10
	cfg.CompressThreshold = 0.5 // threshold = 5 tokens ~ 20 bytes
	b := NewContextBuilder(s.Messages(), s.MessageBlocks(), tr, nil, cfg)

	sessionID := "sess2"
	seedSession(t, s, sessionID, "conv1")
	seq, _ := s.Messages().NextSeq(sessionID)
	m := store.Message{ID: "m1", SessionID: sessionID, Role: store.RoleUser, Seq: seq, Status: store.MessageCompleted, CreatedAt: time.Now().UTC()}
	if err := s.Messages().Save(m); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.MessageBlocks().Save(store.MessageBlock{ID: "b1", MessageID: "m1", Kind: store.BlockText, Content: strings.Repeat("word ", 20)}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	needs, _, _, err := b.NeedsCompression(sessionID)
	if err != nil {
		t.Fatalf("NeedsCompression: %v", err)
	}
	if !needs {
		t.Error("NeedsCompression = false, want true given small threshold and long content")
	}
}
