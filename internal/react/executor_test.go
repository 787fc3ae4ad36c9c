package react

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/orbitx-dev/orbitx/internal/agentctx"
	"github.com/orbitx-dev/orbitx/internal/store"
	"github.com/orbitx-dev/orbitx/internal/tools"
)

// fakeStreamer replays a canned sequence of per-call chunk batches, one
// batch per Stream invocation, so a test can script an exact conversation
// without a live API key or the claude binary.
type fakeStreamer struct {
	batches [][]StreamChunk
	calls   int
}

func (f *fakeStreamer) Stream(ctx context.Context, messages []LLMMessage, toolSchemas []ToolSchema) (<-chan StreamChunk, error) {
	i := f.calls
	f.calls++
	out := make(chan StreamChunk, len(f.batches[i]))
	for _, c := range f.batches[i] {
		out <- c
	}
	close(out)
	return out, nil
}

func textBatch(text string) []StreamChunk {
	return []StreamChunk{
		{Kind: ChunkTextStart},
		{Kind: ChunkTextDelta, Delta: text, Text: text},
		{Kind: ChunkTextEnd, Text: text},
		{Kind: ChunkFinish, FinishReason: FinishStop, Usage: &Usage{InputTokens: 10, OutputTokens: 5}},
	}
}

func emptyBatch() []StreamChunk {
	return []StreamChunk{
		{Kind: ChunkFinish, FinishReason: FinishStop, Usage: &Usage{InputTokens: 1, OutputTokens: 0}},
	}
}

func toolCallBatch(call ToolCallRequest) []StreamChunk {
	return []StreamChunk{
		{Kind: ChunkFinish, FinishReason: FinishToolCalls, Usage: &Usage{InputTokens: 10, OutputTokens: 5}, ToolCalls: []ToolCallRequest{call}},
	}
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// seedSession inserts the conversations/sessions rows messages.session_id's
// foreign key requires, and returns the session id.
func seedSession(t *testing.T, s *store.Store) (conversationID, sessionID string) {
	t.Helper()
	now := time.Now().UTC()
	conversationID = "conv-1"
	sessionID = "sess-1"
	if err := s.Conversations().Save(store.Conversation{ID: conversationID, Title: "t", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	if err := s.Sessions().Save(store.Session{ID: sessionID, ConversationID: conversationID, CreatedAt: now}); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return conversationID, sessionID
}

func newBuilder(s *store.Store) *agentctx.ContextBuilder {
	tr := agentctx.NewTracker(s.FileContext())
	return agentctx.NewContextBuilder(s.Messages(), s.MessageBlocks(), tr, nil, agentctx.DefaultBuilderConfig())
}

func echoToolDef(t *testing.T) *tools.Definition {
	t.Helper()
	type params struct {
		Text string `json:"text"`
	}
	def, err := tools.NewDefinition("echo", "echoes text back", params{}, nil,
		tools.Metadata{Category: tools.CategoryFileRead}, func(ctx context.Context, p map[string]any) (tools.ToolResult, error) {
			text, _ := p["text"].(string)
			return tools.ToolResult{Status: tools.StatusSuccess, Content: []tools.ContentBlock{tools.TextBlock("echo: " + text)}}, nil
		})
	if err != nil {
		t.Fatalf("NewDefinition: %v", err)
	}
	return def
}

func TestExecutorRunCompletesOnTextOutcome(t *testing.T) {
	s := openTestStore(t)
	_, sessionID := seedSession(t, s)

	registry := tools.NewRegistry()
	dispatcher := tools.NewDispatcher(registry)
	builder := newBuilder(s)
	streamer := &fakeStreamer{batches: [][]StreamChunk{textBatch("hello there")}}

	ex := NewExecutor(s, dispatcher, registry, builder, streamer, DefaultConfig())

	exec, err := ex.Run(context.Background(), sessionID, "conv-1", "you are a helper", nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if exec.Status != store.ExecutionCompleted {
		t.Fatalf("Status = %v, want Completed", exec.Status)
	}
	if exec.IterationCount != 1 {
		t.Fatalf("IterationCount = %d, want 1", exec.IterationCount)
	}
	if exec.InputTokens != 10 || exec.OutputTokens != 5 {
		t.Fatalf("usage = %d/%d, want 10/5", exec.InputTokens, exec.OutputTokens)
	}

	msgs, err := s.Messages().FindBySession(sessionID)
	if err != nil {
		t.Fatalf("FindBySession: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != store.RoleAssistant || msgs[0].Status != store.MessageCompleted {
		t.Fatalf("unexpected persisted messages: %+v", msgs)
	}
	blocks, err := s.MessageBlocks().FindByMessage(msgs[0].ID)
	if err != nil {
		t.Fatalf("FindByMessage: %v", err)
	}
	if len(blocks) != 1 || blocks[0].Content != "hello there" {
		t.Fatalf("unexpected blocks: %+v", blocks)
	}
}

func TestExecutorRunErrorsAfterEmptyLimit(t *testing.T) {
	s := openTestStore(t)
	_, sessionID := seedSession(t, s)

	registry := tools.NewRegistry()
	dispatcher := tools.NewDispatcher(registry)
	builder := newBuilder(s)
	streamer := &fakeStreamer{batches: [][]StreamChunk{emptyBatch(), emptyBatch(), emptyBatch()}}

	cfg := DefaultConfig()
	cfg.EmptyLimit = 3
	ex := NewExecutor(s, dispatcher, registry, builder, streamer, cfg)

	exec, err := ex.Run(context.Background(), sessionID, "conv-1", "sys", nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if exec.Status != store.ExecutionError || exec.ErrorReason != "no-content" {
		t.Fatalf("Status/Reason = %v/%q, want Error/no-content", exec.Status, exec.ErrorReason)
	}
	if streamer.calls != 3 {
		t.Fatalf("streamer called %d times, want 3", streamer.calls)
	}
}

func TestExecutorRunDispatchesToolsAndRoundTripsResult(t *testing.T) {
	s := openTestStore(t)
	_, sessionID := seedSession(t, s)

	registry := tools.NewRegistry()
	registry.Register(echoToolDef(t))
	dispatcher := tools.NewDispatcher(registry)
	builder := newBuilder(s)

	call := ToolCallRequest{ID: "call-1", Name: "echo", Arguments: map[string]any{"text": "hi"}}
	streamer := &fakeStreamer{batches: [][]StreamChunk{
		toolCallBatch(call),
		textBatch("done"),
	}}

	ex := NewExecutor(s, dispatcher, registry, builder, streamer, DefaultConfig())

	exec, err := ex.Run(context.Background(), sessionID, "conv-1", "sys", nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if exec.Status != store.ExecutionCompleted {
		t.Fatalf("Status = %v, want Completed", exec.Status)
	}
	if exec.IterationCount != 2 {
		t.Fatalf("IterationCount = %d, want 2", exec.IterationCount)
	}

	toolCalls, err := s.ToolCalls().FindByExecution(exec.ID)
	if err != nil {
		t.Fatalf("FindByExecution: %v", err)
	}
	if len(toolCalls) != 1 || toolCalls[0].Name != "echo" || toolCalls[0].Status != store.ToolResultSuccess {
		t.Fatalf("unexpected tool_calls rows: %+v", toolCalls)
	}

	// Reload the persisted transcript and confirm the tool_use/tool_result
	// pairing survives messageToLLM's reconstruction.
	msgs, err := s.Messages().FindBySession(sessionID)
	if err != nil {
		t.Fatalf("FindBySession: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len(msgs) = %d, want 3 (assistant tool_use turn + user tool_result turn + final assistant turn)", len(msgs))
	}

	var assistantLLM, userLLM LLMMessage
	for _, m := range msgs[:2] {
		blocks, err := s.MessageBlocks().FindByMessage(m.ID)
		if err != nil {
			t.Fatalf("FindByMessage: %v", err)
		}
		llm := messageToLLM(m, blocks)
		if m.Role == store.RoleAssistant {
			assistantLLM = llm
		} else {
			userLLM = llm
		}
	}

	if len(assistantLLM.ToolCalls) != 1 || assistantLLM.ToolCalls[0].ID != call.ID || assistantLLM.ToolCalls[0].Name != "echo" {
		t.Fatalf("assistant ToolCalls = %+v, want one call %q", assistantLLM.ToolCalls, call.ID)
	}
	if assistantLLM.ToolCalls[0].Arguments["text"] != "hi" {
		t.Fatalf("assistant ToolCalls[0].Arguments = %+v, want text=hi", assistantLLM.ToolCalls[0].Arguments)
	}

	if len(userLLM.ToolResults) != 1 || userLLM.ToolResults[0].CallID != call.ID {
		t.Fatalf("user ToolResults = %+v, want CallID %q", userLLM.ToolResults, call.ID)
	}
	if userLLM.ToolResults[0].Content != "echo: hi" {
		t.Fatalf("user ToolResults[0].Content = %q, want %q", userLLM.ToolResults[0].Content, "echo: hi")
	}
	if userLLM.ToolResults[0].IsError {
		t.Fatalf("user ToolResults[0].IsError = true, want false")
	}
}

func TestExecutorRunStopsWhenAlreadyRunning(t *testing.T) {
	s := openTestStore(t)
	_, sessionID := seedSession(t, s)
	now := time.Now().UTC()
	if err := s.Executions().Save(store.Execution{ID: "exec-running", SessionID: sessionID, Status: store.ExecutionRunning, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("seed running execution: %v", err)
	}

	registry := tools.NewRegistry()
	dispatcher := tools.NewDispatcher(registry)
	builder := newBuilder(s)
	streamer := &fakeStreamer{batches: [][]StreamChunk{textBatch("should not run")}}
	ex := NewExecutor(s, dispatcher, registry, builder, streamer, DefaultConfig())

	if _, err := ex.Run(context.Background(), sessionID, "conv-1", "sys", nil, nil); err == nil {
		t.Fatal("Run: want error when a session already has a running execution")
	}
	if streamer.calls != 0 {
		t.Fatalf("streamer called %d times, want 0", streamer.calls)
	}
}

func TestExecutorRunCancelledBeforeFirstIteration(t *testing.T) {
	s := openTestStore(t)
	_, sessionID := seedSession(t, s)

	registry := tools.NewRegistry()
	dispatcher := tools.NewDispatcher(registry)
	builder := newBuilder(s)
	streamer := &fakeStreamer{batches: [][]StreamChunk{textBatch("unreachable")}}
	ex := NewExecutor(s, dispatcher, registry, builder, streamer, DefaultConfig())

	cancelled := func() bool { return true }
	exec, err := ex.Run(context.Background(), sessionID, "conv-1", "sys", cancelled, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if exec.Status != store.ExecutionCancelled {
		t.Fatalf("Status = %v, want Cancelled", exec.Status)
	}
	if streamer.calls != 0 {
		t.Fatalf("streamer called %d times, want 0", streamer.calls)
	}
}

func TestExecutorRunExhaustsMaxIterations(t *testing.T) {
	s := openTestStore(t)
	_, sessionID := seedSession(t, s)

	batches := make([][]StreamChunk, 2)
	for i := range batches {
		// Each turn carries its own call id, as a provider issues them.
		call := ToolCallRequest{ID: "loop-call-" + string(rune('a'+i)), Name: "echo", Arguments: map[string]any{"text": "x"}}
		batches[i] = toolCallBatch(call)
	}

	registry := tools.NewRegistry()
	registry.Register(echoToolDef(t))
	dispatcher := tools.NewDispatcher(registry)
	builder := newBuilder(s)
	streamer := &fakeStreamer{batches: batches}

	cfg := DefaultConfig()
	cfg.MaxIterations = 2
	ex := NewExecutor(s, dispatcher, registry, builder, streamer, cfg)

	exec, err := ex.Run(context.Background(), sessionID, "conv-1", "sys", nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if exec.Status != store.ExecutionError || exec.ErrorReason != "max-iterations-exceeded" {
		t.Fatalf("Status/Reason = %v/%q, want Error/max-iterations-exceeded", exec.Status, exec.ErrorReason)
	}
	if exec.IterationCount != 2 {
		t.Fatalf("IterationCount = %d, want 2", exec.IterationCount)
	}
}

func TestClassifyOutcome(t *testing.T) {
	if out := classifyOutcome("", "", []ToolCallRequest{{ID: "1"}}); out.Kind != OutcomeContinueWithTools {
		t.Fatalf("Kind = %v, want ContinueWithTools", out.Kind)
	}
	if out := classifyOutcome("thought", "text", nil); out.Kind != OutcomeComplete {
		t.Fatalf("Kind = %v, want Complete", out.Kind)
	}
	if out := classifyOutcome("", "", nil); out.Kind != OutcomeEmpty {
		t.Fatalf("Kind = %v, want Empty", out.Kind)
	}
}

func TestSplitThinkingTags(t *testing.T) {
	thinking, output := splitThinkingTags("<thinking>plan it out</thinking>final answer")
	if thinking != "plan it out" || output != "final answer" {
		t.Fatalf("thinking=%q output=%q", thinking, output)
	}
}

func TestRecentPaths(t *testing.T) {
	rows := []store.Message{{ID: "m1"}, {ID: "m2"}}
	args, _ := json.Marshal(map[string]string{"file_path": "internal/foo.go"})
	blocksByMsg := map[string][]store.MessageBlock{
		"m1": {{ID: "b1", Kind: store.BlockTool, ToolInput: string(args)}},
		"m2": {{ID: "b2", Kind: store.BlockText, Content: "hi"}},
	}
	got := recentPaths(rows, blocksByMsg, 10)
	if len(got) != 1 || got[0] != "internal/foo.go" {
		t.Fatalf("recentPaths = %v, want [internal/foo.go]", got)
	}
}
