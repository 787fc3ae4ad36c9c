package agentctx

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/orbitx-dev/orbitx/internal/store"
)

// Tracker is spec.md §4.9's FileContextTracker: it records every file
// operation as (path, source, optional state override), normalizes the
// path relative to the workspace root, consults the Repository for the
// existing entry, and applies the fixed transition table.
type Tracker struct {
	db *store.FileContextRepository

	mu                 sync.Mutex
	recentlyModified   map[string]bool // touched by the user since the last drain
	recentlyAgentEdits map[string]bool // touched by the agent since the last drain
}

// NewTracker wires a Tracker to its backing Repository.
func NewTracker(db *store.FileContextRepository) *Tracker {
	return &Tracker{
		db:                 db,
		recentlyModified:   make(map[string]bool),
		recentlyAgentEdits: make(map[string]bool),
	}
}

// NormalizePath relativizes path to workspaceRoot for use as the tracker's
// storage key. If path isn't under workspaceRoot (or isn't absolute),
// it's returned unchanged — spec.md's "absolute retained" fallback.
func NormalizePath(workspaceRoot, path string) string {
	if workspaceRoot == "" || !filepath.IsAbs(path) {
		return path
	}
	rel, err := filepath.Rel(workspaceRoot, path)
	if err != nil || rel == ".." || len(rel) >= 2 && rel[:2] == ".." {
		return path
	}
	return rel
}

// Record applies one file operation per spec.md §4.9's transition table:
//
//	ReadTool       -> Active, agent_read_ts=now,                  clear user-modified
//	AgentEdited    -> Active, agent_read_ts=now, agent_edit_ts=now, clear user-modified, mark agent-edit
//	UserEdited     -> Stale,                      user_edit_ts=now, mark user-modified
//	FileMentioned  -> existing state, or Active if no entry exists yet
//
// stateOverride, if non-nil, wins over the derived state.
func (t *Tracker) Record(conversationID, workspaceRoot, path string, source store.FileSource, stateOverride *store.FileState) error {
	normalized := NormalizePath(workspaceRoot, path)

	existing, ok, err := t.db.Find(conversationID, normalized)
	if err != nil {
		return fmt.Errorf("agentctx.Tracker.Record: %w", err)
	}

	entry := existing
	if !ok {
		entry = store.FileContextEntry{ConversationID: conversationID, Path: normalized}
	}

	now := time.Now().UTC()
	switch source {
	case store.SourceReadTool:
		entry.State = store.FileActive
		entry.AgentReadAt = &now
		t.clearUserModified(normalized)
	case store.SourceAgentEdited:
		entry.State = store.FileActive
		entry.AgentReadAt = &now
		entry.AgentEditAt = &now
		t.clearUserModified(normalized)
		t.markAgentEdit(normalized)
	case store.SourceUserEdited:
		entry.State = store.FileStale
		entry.UserEditAt = &now
		t.markUserModified(normalized)
	case store.SourceFileMentioned:
		if !ok {
			entry.State = store.FileActive
		}
	}
	entry.Source = source
	if stateOverride != nil {
		entry.State = *stateOverride
	}
	entry.UpdatedAt = now

	if err := t.db.Upsert(entry); err != nil {
		return fmt.Errorf("agentctx.Tracker.Record: %w", err)
	}
	return nil
}

func (t *Tracker) markUserModified(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recentlyModified[path] = true
}

func (t *Tracker) clearUserModified(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.recentlyModified, path)
}

func (t *Tracker) markAgentEdit(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recentlyAgentEdits[path] = true
}

// DrainRecentlyModified returns and clears the set of paths the user has
// edited since the last drain — the ContextBuilder consumes this once per
// turn.
func (t *Tracker) DrainRecentlyModified() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.recentlyModified))
	for p := range t.recentlyModified {
		out = append(out, p)
	}
	t.recentlyModified = make(map[string]bool)
	return out
}

// DrainRecentlyAgentEdits returns and clears the set of paths the agent has
// edited since the last drain.
func (t *Tracker) DrainRecentlyAgentEdits() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.recentlyAgentEdits))
	for p := range t.recentlyAgentEdits {
		out = append(out, p)
	}
	t.recentlyAgentEdits = make(map[string]bool)
	return out
}

// ActiveOrStale returns every Active/Stale entry currently tracked for a
// conversation, for the ContextBuilder's file-awareness pass.
func (t *Tracker) ActiveOrStale(conversationID string) ([]store.FileContextEntry, error) {
	all, err := t.db.FindByConversation(conversationID)
	if err != nil {
		return nil, fmt.Errorf("agentctx.Tracker.ActiveOrStale: %w", err)
	}
	out := all[:0]
	for _, e := range all {
		if e.State == store.FileActive || e.State == store.FileStale {
			out = append(out, e)
		}
	}
	return out, nil
}
