package agentctx

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/orbitx-dev/orbitx/internal/store"
)

// bytesPerToken mirrors vectorindex.Chunker's heuristic — kept independent
// rather than imported since the two packages estimate tokens for unrelated
// budgets (chunking vs. context compression).
const bytesPerToken = 4.0

// Summarizer reduces a run of older messages (with their blocks, keyed by
// message id) to a single prose summary. The ReAct executor supplies the
// concrete implementation (an LLM call); agentctx stays provider-agnostic.
type Summarizer func(ctx context.Context, older []store.Message, blocks map[string][]store.MessageBlock) (string, error)

// BuilderConfig holds the tunables spec.md §4.9 names for the ContextBuilder.
type BuilderConfig struct {
	MaxFileContextChars int     // total injected file-awareness text budget
	MaxTokens           int     // the conversation's overall token budget
	CompressThreshold   float64 // compress once estimated tokens exceed MaxTokens*CompressThreshold
	RecentIterations    int     // how many trailing messages count as "the recent iteration window"
}

// DefaultBuilderConfig matches the values spec.md §4.9 calls out by name.
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		MaxFileContextChars: 4000,
		MaxTokens:           100000,
		CompressThreshold:   0.8,
		RecentIterations:    10,
	}
}

// ContextBuilder assembles the message slice handed to the LLM each
// iteration: the canonical history from the Repository, windowed through a
// Ring, with a synthetic file-awareness reminder injected and a compression
// pass applied once the window grows past budget (spec.md §4.9).
type ContextBuilder struct {
	messages   *store.MessageRepository
	blocks     *store.MessageBlockRepository
	tracker    *Tracker
	summarizer Summarizer
	cfg        BuilderConfig
}

// NewContextBuilder wires a ContextBuilder. summarizer may be nil, in which
// case Compress falls back to a non-LLM extractive summary.
func NewContextBuilder(messages *store.MessageRepository, blocks *store.MessageBlockRepository, tracker *Tracker, summarizer Summarizer, cfg BuilderConfig) *ContextBuilder {
	if cfg.MaxFileContextChars <= 0 {
		cfg.MaxFileContextChars = DefaultBuilderConfig().MaxFileContextChars
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultBuilderConfig().MaxTokens
	}
	if cfg.CompressThreshold <= 0 {
		cfg.CompressThreshold = DefaultBuilderConfig().CompressThreshold
	}
	if cfg.RecentIterations <= 0 {
		cfg.RecentIterations = DefaultBuilderConfig().RecentIterations
	}
	return &ContextBuilder{messages: messages, blocks: blocks, tracker: tracker, summarizer: summarizer, cfg: cfg}
}

// Tracker exposes the FileContextTracker backing this builder's
// FileAwareness reminders, for callers (react.Executor's snapshot writer)
// that need the same active/stale file set without duplicating a second
// Tracker against the same Repository.
func (b *ContextBuilder) Tracker() *Tracker { return b.tracker }

// formatAge renders a duration the way spec.md §4.9's examples do:
// "42s ago", "3m ago", "4d ago" — coarsest whole unit, no sub-unit precision.
func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// FileAwareness builds the synthetic reminder text for every Active/Stale
// file the tracker knows about for conversationID, provided at least one of
// recentPaths (the paths referenced in the recent iteration window) matches
// a tracked entry. Returns ("", false) when nothing qualifies.
func (b *ContextBuilder) FileAwareness(conversationID string, recentPaths []string) (string, bool, error) {
	entries, err := b.tracker.ActiveOrStale(conversationID)
	if err != nil {
		return "", false, fmt.Errorf("agentctx.ContextBuilder.FileAwareness: %w", err)
	}
	if len(entries) == 0 {
		return "", false, nil
	}

	recent := make(map[string]bool, len(recentPaths))
	for _, p := range recentPaths {
		recent[p] = true
	}

	var relevant []store.FileContextEntry
	for _, e := range entries {
		if recent[e.Path] {
			relevant = append(relevant, e)
		}
	}
	if len(relevant) == 0 {
		return "", false, nil
	}

	sort.Slice(relevant, func(i, j int) bool { return relevant[i].Path < relevant[j].Path })

	now := time.Now().UTC()
	var sb strings.Builder
	sb.WriteString("Files currently in context:\n")
	for _, e := range relevant {
		line := fmt.Sprintf("- %s (%s", e.Path, e.State)
		switch {
		case e.AgentEditAt != nil:
			line += fmt.Sprintf(", agent-edited %s", formatAge(now.Sub(*e.AgentEditAt)))
		case e.UserEditAt != nil:
			line += fmt.Sprintf(", user-edited %s", formatAge(now.Sub(*e.UserEditAt)))
		case e.AgentReadAt != nil:
			line += fmt.Sprintf(", read %s", formatAge(now.Sub(*e.AgentReadAt)))
		}
		line += ")\n"

		if sb.Len()+len(line) > b.cfg.MaxFileContextChars {
			sb.WriteString("- ... (truncated)\n")
			break
		}
		sb.WriteString(line)
	}

	out := sb.String()
	if len(out) > b.cfg.MaxFileContextChars {
		out = out[:b.cfg.MaxFileContextChars]
	}
	return out, true, nil
}

// KeepTail returns the configured recent-iteration window size, the value
// callers typically pass as Compress's keepTail argument.
func (b *ContextBuilder) KeepTail() int {
	return b.cfg.RecentIterations
}

// estimateTokens approximates a message window's token count from its
// blocks' raw text length, using the same bytes-per-token heuristic as
// vectorindex's chunker.
func estimateTokens(blocksByMessage map[string][]store.MessageBlock) int {
	var total int
	for _, bs := range blocksByMessage {
		for _, b := range bs {
			total += len(b.Content) + len(b.ToolInput) + len(b.ToolOutput)
		}
	}
	return int(float64(total)/bytesPerToken) + 1
}

// NeedsCompression reports whether sessionID's full message window exceeds
// MaxTokens*CompressThreshold.
func (b *ContextBuilder) NeedsCompression(sessionID string) (bool, []store.Message, map[string][]store.MessageBlock, error) {
	msgs, err := b.messages.FindBySession(sessionID)
	if err != nil {
		return false, nil, nil, fmt.Errorf("agentctx.ContextBuilder.NeedsCompression: %w", err)
	}
	byMsg := make(map[string][]store.MessageBlock, len(msgs))
	for _, m := range msgs {
		bs, err := b.blocks.FindByMessage(m.ID)
		if err != nil {
			return false, nil, nil, fmt.Errorf("agentctx.ContextBuilder.NeedsCompression: %w", err)
		}
		byMsg[m.ID] = bs
	}
	tokens := estimateTokens(byMsg)
	threshold := float64(b.cfg.MaxTokens) * b.cfg.CompressThreshold
	return float64(tokens) > threshold, msgs, byMsg, nil
}

// Compress summarizes every message but the trailing keepTail into a single
// new System message with IsSummary=true, prepended ahead of the kept tail.
// It persists the summary via the Repository and returns it; callers are
// responsible for re-reading the session's message list afterward.
func (b *ContextBuilder) Compress(ctx context.Context, sessionID string, keepTail int) (store.Message, error) {
	msgs, err := b.messages.FindBySession(sessionID)
	if err != nil {
		return store.Message{}, fmt.Errorf("agentctx.ContextBuilder.Compress: %w", err)
	}
	if keepTail < 0 {
		keepTail = 0
	}
	if len(msgs) <= keepTail {
		return store.Message{}, fmt.Errorf("agentctx.ContextBuilder.Compress: nothing to compress (have %d, keepTail %d)", len(msgs), keepTail)
	}
	older := msgs[:len(msgs)-keepTail]

	byMsg := make(map[string][]store.MessageBlock, len(older))
	for _, m := range older {
		bs, err := b.blocks.FindByMessage(m.ID)
		if err != nil {
			return store.Message{}, fmt.Errorf("agentctx.ContextBuilder.Compress: %w", err)
		}
		byMsg[m.ID] = bs
	}

	var summaryText string
	if b.summarizer != nil {
		summaryText, err = b.summarizer(ctx, older, byMsg)
		if err != nil {
			return store.Message{}, fmt.Errorf("agentctx.ContextBuilder.Compress: summarizer: %w", err)
		}
	} else {
		summaryText = extractiveSummary(older, byMsg)
	}

	seq, err := b.messages.NextSeq(sessionID)
	if err != nil {
		return store.Message{}, fmt.Errorf("agentctx.ContextBuilder.Compress: %w", err)
	}
	summary := store.Message{
		ID:        summaryMessageID(sessionID, seq),
		SessionID: sessionID,
		Role:      store.RoleSystem,
		Seq:       seq,
		IsSummary: true,
		Status:    store.MessageCompleted,
		CreatedAt: time.Now().UTC(),
	}
	if err := b.messages.Save(summary); err != nil {
		return store.Message{}, fmt.Errorf("agentctx.ContextBuilder.Compress: %w", err)
	}
	block := store.MessageBlock{
		ID:        summary.ID + "-summary",
		MessageID: summary.ID,
		Seq:       0,
		Kind:      store.BlockText,
		Content:   summaryText,
	}
	if err := b.blocks.Save(block); err != nil {
		return store.Message{}, fmt.Errorf("agentctx.ContextBuilder.Compress: %w", err)
	}
	return summary, nil
}

// extractiveSummary is the no-Summarizer fallback: a terse listing of each
// older message's role and leading text, good enough to preserve gross
// shape when no LLM call is wired in (tests, offline compression).
func extractiveSummary(older []store.Message, byMsg map[string][]store.MessageBlock) string {
	var sb strings.Builder
	sb.WriteString("Summary of earlier conversation:\n")
	for _, m := range older {
		for _, b := range byMsg[m.ID] {
			text := b.Content
			if len(text) > 200 {
				text = text[:200] + "..."
			}
			if text == "" {
				continue
			}
			sb.WriteString(fmt.Sprintf("- [%s] %s\n", m.Role, text))
		}
	}
	return sb.String()
}

func summaryMessageID(sessionID string, seq int) string {
	return fmt.Sprintf("%s-summary-%d", sessionID, seq)
}
