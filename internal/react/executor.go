package react

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/orbitx-dev/orbitx/internal/agentctx"
	"github.com/orbitx-dev/orbitx/internal/orbiterr"
	"github.com/orbitx-dev/orbitx/internal/store"
	"github.com/orbitx-dev/orbitx/internal/store/snapshot"
	"github.com/orbitx-dev/orbitx/internal/tools"
)

// Config bounds one Executor run per spec.md §4.10.
type Config struct {
	// MaxIterations is the hard per-execution cap (spec.md: default 50).
	MaxIterations int
	// EmptyLimit is N_empty_limit: consecutive Empty outcomes before the
	// execution moves to Error("no-content"). spec.md names the mechanism
	// but not a default; 3 mirrors the teacher's general retry-budget scale.
	EmptyLimit int
	// Model is the identifier handed to the LLMStreamer (ignored by
	// streamers, such as the CLI adapter, that select their own model).
	Model string
	// CostPerToken optionally prices AddUsage's cost_usd column. Nil means
	// no pricing table is wired and cost stays zero — orbitx ships no
	// per-model rate card, so this is left for callers to inject.
	CostPerToken func(model string, inputTokens, outputTokens int) float64

	// SnapshotDir, when non-empty, makes Run write a store/snapshot.SessionState
	// to SnapshotDir/<sessionID>.snapshot after every iteration (spec.md §4.5
	// component G). Nothing reads it back to rebuild state: assembleMessages
	// always replays the session's history from the Repository, and the daemon
	// only logs a found snapshot on resume. Empty disables snapshotting.
	SnapshotDir string
}

// DefaultConfig returns spec.md's stated default plus this package's chosen
// empty-iteration budget.
func DefaultConfig() Config {
	return Config{MaxIterations: 50, EmptyLimit: 3}
}

// ProgressEvent is forwarded to an optional sink as an iteration streams, so
// a bound terminal pane can render deltas live without waiting for Finish.
type ProgressEvent struct {
	ExecutionID string
	Kind        ChunkKind
	Delta       string
	ToolName    string
}

// ProgressFunc receives ProgressEvents; it must not block meaningfully since
// it runs inline on the streaming goroutine's consumer.
type ProgressFunc func(ProgressEvent)

// Executor drives spec.md §4.10's bounded ReAct loop: assemble messages,
// stream one LLM turn, classify its IterationOutcome, dispatch any
// requested tools, and persist every step through the Repository layer.
type Executor struct {
	db         *store.Store
	dispatcher *tools.Dispatcher
	registry   *tools.Registry
	builder    *agentctx.ContextBuilder
	streamer   LLMStreamer
	cfg        Config
}

// NewExecutor wires an Executor to its persistence, tool dispatch, context
// assembly, and LLM streaming backend. streamer is typically an
// *AnthropicStreamer or *ClaudeCLIStreamer.
func NewExecutor(db *store.Store, dispatcher *tools.Dispatcher, registry *tools.Registry, builder *agentctx.ContextBuilder, streamer LLMStreamer, cfg Config) *Executor {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 50
	}
	if cfg.EmptyLimit <= 0 {
		cfg.EmptyLimit = 3
	}
	return &Executor{db: db, dispatcher: dispatcher, registry: registry, builder: builder, streamer: streamer, cfg: cfg}
}

// Run executes spec.md §4.10's state machine for sessionID end to end,
// persisting an Execution row plus every Message/MessageBlock/ToolCall it
// produces, and returns the final Execution. cancelled is polled at every
// suspension point named in spec.md §5; once it reports true the run stops
// and the execution is marked Cancelled.
func (e *Executor) Run(ctx context.Context, sessionID, conversationID, systemPrompt string, cancelled func() bool, progress ProgressFunc) (store.Execution, error) {
	if cancelled == nil {
		cancelled = func() bool { return false }
	}
	if progress == nil {
		progress = func(ProgressEvent) {}
	}

	if _, running, err := e.db.Executions().RunningForSession(sessionID); err != nil {
		return store.Execution{}, fmt.Errorf("react.Run: %w", err)
	} else if running {
		return store.Execution{}, orbiterr.New(orbiterr.KindToolExecutionFailed, "react.Run", fmt.Errorf("session %s already has a running execution", sessionID))
	}

	now := time.Now().UTC()
	exec := store.Execution{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		Status:       store.ExecutionRunning,
		SystemPrompt: systemPrompt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.db.Executions().Save(exec); err != nil {
		return store.Execution{}, fmt.Errorf("react.Run: save execution: %w", err)
	}

	toolSchemas := e.toolSchemas()

	for iter := 0; iter < e.cfg.MaxIterations; iter++ {
		if cancelled() {
			return e.finish(exec, store.ExecutionCancelled, "")
		}

		messages, err := e.assembleMessages(sessionID, conversationID, systemPrompt)
		if err != nil {
			return e.finish(exec, store.ExecutionError, err.Error())
		}

		outcome, usage, err := e.runOneTurn(ctx, exec.ID, sessionID, messages, toolSchemas, cancelled, progress)
		if err != nil {
			return e.finish(exec, store.ExecutionError, err.Error())
		}

		if usage != nil {
			if err := e.db.Executions().AddUsage(exec.ID, usage.InputTokens, usage.OutputTokens, e.cost(usage)); err != nil {
				return e.finish(exec, store.ExecutionError, err.Error())
			}
		}
		if _, err := e.db.Executions().IncrementIteration(exec.ID); err != nil {
			return e.finish(exec, store.ExecutionError, err.Error())
		}

		e.writeSnapshot(sessionID, conversationID, exec.ID, iter+1)

		switch outcome.Kind {
		case OutcomeComplete:
			return e.finish(exec, store.ExecutionCompleted, "")

		case OutcomeEmpty:
			n, err := e.db.Executions().IncrementEmpty(exec.ID)
			if err != nil {
				return e.finish(exec, store.ExecutionError, err.Error())
			}
			if n >= e.cfg.EmptyLimit {
				return e.finish(exec, store.ExecutionError, "no-content")
			}
			// loop: try again

		case OutcomeContinueWithTools:
			if cancelled() {
				return e.finish(exec, store.ExecutionCancelled, "")
			}
			if err := e.dispatchAndPersist(ctx, exec.ID, sessionID, outcome.Calls, cancelled, progress); err != nil {
				return e.finish(exec, store.ExecutionError, err.Error())
			}
			// loop: feed results back as the next turn's messages
		}
	}

	return e.finish(exec, store.ExecutionError, "max-iterations-exceeded")
}

func (e *Executor) finish(exec store.Execution, status store.ExecutionStatus, reason string) (store.Execution, error) {
	if err := e.db.Executions().UpdateStatus(exec.ID, status, reason); err != nil {
		return exec, fmt.Errorf("react.finish: %w", err)
	}
	// Return the persisted row so the caller sees the accumulated counters.
	if row, ok, err := e.db.Executions().FindByID(exec.ID); err == nil && ok {
		return row, nil
	}
	exec.Status = status
	exec.ErrorReason = reason
	return exec, nil
}

// writeSnapshot persists a resumable SessionState at the end of an
// iteration (spec.md §4.5 component G). Failures are swallowed rather than
// failing the run: the Repository remains the source of truth, and no code
// path depends on the snapshot being present.
func (e *Executor) writeSnapshot(sessionID, conversationID, executionID string, iteration int) {
	if e.cfg.SnapshotDir == "" {
		return
	}
	rows, err := e.db.Messages().FindBySession(sessionID)
	if err != nil {
		return
	}
	tail := rows
	if keep := e.builder.KeepTail(); keep > 0 && keep < len(tail) {
		tail = tail[len(tail)-keep:]
	}
	ring := make([]snapshot.RawMessage, 0, len(tail))
	for _, m := range tail {
		blocks, err := e.db.MessageBlocks().FindByMessage(m.ID)
		if err != nil {
			continue
		}
		llm := messageToLLM(m, blocks)
		ring = append(ring, snapshot.RawMessage{Role: string(llm.Role), Content: llm.Content})
	}

	var modified, edited []string
	if tracker := e.builder.Tracker(); tracker != nil && conversationID != "" {
		if entries, err := tracker.ActiveOrStale(conversationID); err == nil {
			for _, entry := range entries {
				if entry.State == store.FileStale {
					modified = append(modified, entry.Path)
				} else {
					edited = append(edited, entry.Path)
				}
			}
		}
	}

	state := snapshot.SessionState{
		SessionID:        sessionID,
		ExecutionID:      executionID,
		RingMessages:     ring,
		RecentlyModified: modified,
		RecentlyEdited:   edited,
		IterationCount:   iteration,
	}
	path := filepath.Join(e.cfg.SnapshotDir, sessionID+".snapshot")
	_ = snapshot.Write(path, state)
}

func (e *Executor) cost(u *Usage) float64 {
	if e.cfg.CostPerToken == nil {
		return 0
	}
	return e.cfg.CostPerToken(e.cfg.Model, u.InputTokens, u.OutputTokens)
}

func (e *Executor) toolSchemas() []ToolSchema {
	defs := e.registry.List()
	out := make([]ToolSchema, 0, len(defs))
	for _, d := range defs {
		out = append(out, ToolSchema{Name: d.Name, Description: d.Description, Schema: d.Schema()})
	}
	return out
}

// assembleMessages is step 1: system prompt + compressed history + recent
// ring + injected file-context reminder.
func (e *Executor) assembleMessages(sessionID, conversationID, systemPrompt string) ([]LLMMessage, error) {
	if needs, _, _, err := e.builder.NeedsCompression(sessionID); err != nil {
		return nil, fmt.Errorf("assembleMessages: %w", err)
	} else if needs {
		if _, err := e.builder.Compress(context.Background(), sessionID, e.builder.KeepTail()); err != nil {
			return nil, fmt.Errorf("assembleMessages: compress: %w", err)
		}
	}

	rows, err := e.db.Messages().FindBySession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("assembleMessages: %w", err)
	}

	blocksByMsg := make(map[string][]store.MessageBlock, len(rows))
	for _, m := range rows {
		blocks, err := e.db.MessageBlocks().FindByMessage(m.ID)
		if err != nil {
			return nil, fmt.Errorf("assembleMessages: %w", err)
		}
		blocksByMsg[m.ID] = blocks
	}

	sys := systemPrompt
	if recent := recentPaths(rows, blocksByMsg, e.builder.KeepTail()); len(recent) > 0 {
		if reminder, ok, err := e.builder.FileAwareness(conversationID, recent); err == nil && ok {
			sys = strings.TrimSpace(sys + "\n\n" + reminder)
		}
	}

	out := make([]LLMMessage, 0, len(rows)+1)
	if sys != "" {
		out = append(out, LLMMessage{Role: RoleSystem, Content: sys})
	}
	for _, m := range rows {
		out = append(out, messageToLLM(m, blocksByMsg[m.ID]))
	}
	return out, nil
}

// recentPaths scans the trailing keepTail messages' tool blocks for the
// file_path argument builtin read/write/edit tools take, so FileAwareness
// can limit its reminder to files actually touched in the recent window.
func recentPaths(rows []store.Message, blocksByMsg map[string][]store.MessageBlock, keepTail int) []string {
	if keepTail <= 0 || keepTail > len(rows) {
		keepTail = len(rows)
	}
	tail := rows[len(rows)-keepTail:]

	seen := make(map[string]bool)
	var out []string
	for _, m := range tail {
		for _, b := range blocksByMsg[m.ID] {
			if b.Kind != store.BlockTool || b.ToolInput == "" {
				continue
			}
			var args struct {
				FilePath string `json:"file_path"`
			}
			if err := json.Unmarshal([]byte(b.ToolInput), &args); err != nil || args.FilePath == "" {
				continue
			}
			if !seen[args.FilePath] {
				seen[args.FilePath] = true
				out = append(out, args.FilePath)
			}
		}
	}
	return out
}

// toolResultBlockPrefix marks a MessageBlock.ID as a tool-result block
// answering the tool_use id that follows it, since message_blocks' id is a
// table-wide primary key and a result block cannot reuse the originating
// call's id outright.
const toolResultBlockPrefix = "result-"

func messageToLLM(m store.Message, blocks []store.MessageBlock) LLMMessage {
	role := RoleUser
	switch m.Role {
	case store.RoleAssistant:
		role = RoleAssistant
	case store.RoleSystem:
		role = RoleSystem
	}
	var text strings.Builder
	var calls []ToolCallRequest
	var results []ToolResultPart
	for _, b := range blocks {
		switch {
		case b.Kind == store.BlockTool && role == RoleAssistant:
			// The assistant's own tool_use request — block ID is the call id.
			var args map[string]any
			_ = json.Unmarshal([]byte(b.ToolInput), &args)
			calls = append(calls, ToolCallRequest{ID: b.ID, Name: b.ToolName, Arguments: args})
		case b.Kind == store.BlockTool:
			// A tool_result folded into the next user turn.
			results = append(results, ToolResultPart{
				CallID:  strings.TrimPrefix(b.ID, toolResultBlockPrefix),
				Content: b.Content,
				IsError: b.ToolStatus == store.ToolBlockError,
			})
		default:
			text.WriteString(b.Content)
		}
	}
	return LLMMessage{Role: role, Content: text.String(), ToolCalls: calls, ToolResults: results}
}

// runOneTurn is steps 2-5: stream one LLM turn, forward deltas, persist the
// resulting assistant message, and classify its IterationOutcome.
func (e *Executor) runOneTurn(ctx context.Context, executionID, sessionID string, messages []LLMMessage, toolSchemas []ToolSchema, cancelled func() bool, progress ProgressFunc) (IterationOutcome, *Usage, error) {
	chunks, err := e.streamer.Stream(ctx, messages, toolSchemas)
	if err != nil {
		return IterationOutcome{}, nil, orbiterr.New(orbiterr.KindProviderHttpError, "react.runOneTurn", err)
	}

	seq, err := e.db.Messages().NextSeq(sessionID)
	if err != nil {
		return IterationOutcome{}, nil, err
	}
	msg := store.Message{ID: uuid.NewString(), SessionID: sessionID, Role: store.RoleAssistant, Seq: seq, Status: store.MessageStreaming, CreatedAt: time.Now().UTC()}
	if err := e.db.Messages().Save(msg); err != nil {
		return IterationOutcome{}, nil, err
	}
	block := store.MessageBlock{ID: uuid.NewString(), MessageID: msg.ID, Kind: store.BlockText, IsStreaming: true}
	if err := e.db.MessageBlocks().Save(block); err != nil {
		return IterationOutcome{}, nil, err
	}

	var outcome IterationOutcome
	var usage *Usage
	var finalText string

	for chunk := range chunks {
		if cancelled() {
			_ = e.db.Messages().SetStatus(msg.ID, store.MessageCancelled)
			return IterationOutcome{}, usage, context.Canceled
		}
		switch chunk.Kind {
		case ChunkTextDelta:
			progress(ProgressEvent{ExecutionID: executionID, Kind: chunk.Kind, Delta: chunk.Delta})
			_ = e.db.MessageBlocks().UpdateContent(block.ID, chunk.Text, true)
		case ChunkTextEnd:
			finalText = chunk.Text
			_ = e.db.MessageBlocks().UpdateContent(block.ID, chunk.Text, false)
		case ChunkError:
			_ = e.db.Messages().SetStatus(msg.ID, store.MessageErrorState)
			return IterationOutcome{}, usage, orbiterr.New(orbiterr.KindStreamParseError, "react.runOneTurn", chunk.Err)
		case ChunkFinish:
			usage = chunk.Usage
			thinking, output := splitThinkingTags(finalText)
			outcome = classifyOutcome(thinking, output, chunk.ToolCalls)
		}
	}

	if outcome.Kind == "" {
		// Channel closed without a Finish chunk — treat as Empty rather than
		// silently looping forever on a zero-value outcome.
		outcome = IterationOutcome{Kind: OutcomeEmpty}
	}

	if outcome.Kind == OutcomeContinueWithTools {
		for i, call := range outcome.Calls {
			argsJSON, _ := json.Marshal(call.Arguments)
			tb := store.MessageBlock{
				ID:         call.ID,
				MessageID:  msg.ID,
				Seq:        i + 1,
				Kind:       store.BlockTool,
				ToolName:   call.Name,
				ToolStatus: store.ToolBlockRunning,
				ToolInput:  string(argsJSON),
			}
			if err := e.db.MessageBlocks().Save(tb); err != nil {
				return outcome, usage, err
			}
		}
	}

	if err := e.db.Messages().SetStatus(msg.ID, store.MessageCompleted); err != nil {
		return outcome, usage, err
	}
	if err := e.db.ExecutionMessages().Append(executionID, msg.ID); err != nil {
		return outcome, usage, err
	}
	return outcome, usage, nil
}

// splitThinkingTags routes text inside <thinking>...</thinking> markers to
// the thinking buffer per spec.md §4.10 step 3; everything else is output.
func splitThinkingTags(text string) (thinking, output string) {
	const openTag, closeTag = "<thinking>", "</thinking>"
	var out strings.Builder
	var think strings.Builder
	rest := text
	for {
		start := strings.Index(rest, openTag)
		if start == -1 {
			out.WriteString(rest)
			break
		}
		out.WriteString(rest[:start])
		rest = rest[start+len(openTag):]
		end := strings.Index(rest, closeTag)
		if end == -1 {
			think.WriteString(rest)
			break
		}
		think.WriteString(rest[:end])
		rest = rest[end+len(closeTag):]
	}
	return strings.TrimSpace(think.String()), strings.TrimSpace(out.String())
}

// dispatchAndPersist is step 6's tool branch: dispatch via tools.Dispatcher,
// persist each ToolResult as a ToolCall row plus a Tool content block on a
// new user-role message feeding the next turn.
func (e *Executor) dispatchAndPersist(ctx context.Context, executionID, sessionID string, calls []ToolCallRequest, cancelled func() bool, progress ProgressFunc) error {
	toolCalls := make([]tools.Call, len(calls))
	for i, c := range calls {
		toolCalls[i] = tools.Call{ID: c.ID, Name: c.Name, Params: c.Arguments}
		// ToolName-only events (no Kind) signal "about to dispatch this tool" —
		// distinct from the text-streaming Kind variants above.
		progress(ProgressEvent{ExecutionID: executionID, ToolName: c.Name})
	}

	results := e.dispatcher.Dispatch(ctx, toolCalls, cancelled)

	seq, err := e.db.Messages().NextSeq(sessionID)
	if err != nil {
		return err
	}
	msg := store.Message{ID: uuid.NewString(), SessionID: sessionID, Role: store.RoleUser, Seq: seq, Status: store.MessageCompleted, CreatedAt: time.Now().UTC()}
	if err := e.db.Messages().Save(msg); err != nil {
		return err
	}
	if err := e.db.ExecutionMessages().Append(executionID, msg.ID); err != nil {
		return err
	}

	for i, result := range results {
		call := calls[i]
		if err := e.persistToolCall(executionID, call, result); err != nil {
			return err
		}

		inputJSON, _ := json.Marshal(call.Arguments)
		outputJSON, _ := json.Marshal(result.Content)
		blk := store.MessageBlock{
			ID:         toolResultBlockPrefix + call.ID,
			MessageID:  msg.ID,
			Seq:        i,
			Kind:       store.BlockTool,
			Content:    result.Text(),
			ToolName:   call.Name,
			ToolStatus: toolBlockStatus(result.Status),
			ToolInput:  string(inputJSON),
			ToolOutput: string(outputJSON),
		}
		if err := e.db.MessageBlocks().Save(blk); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) persistToolCall(executionID string, call ToolCallRequest, result tools.ToolResult) error {
	seq, err := e.db.ToolCalls().NextSeq(executionID)
	if err != nil {
		return err
	}
	inputJSON, _ := json.Marshal(call.Arguments)
	outputJSON, _ := json.Marshal(result.Content)
	tc := store.ToolCall{
		ID:              uuid.NewString(),
		ExecutionID:     executionID,
		Seq:             seq,
		Name:            call.Name,
		Input:           string(inputJSON),
		Status:          toolResultStatus(result.Status),
		CancelReason:    result.CancelReason,
		Output:          string(outputJSON),
		ExtInfo:         string(result.ExtInfo),
		ExecutionTimeMs: result.ExecutionTimeMs,
		CreatedAt:       time.Now().UTC(),
	}
	return e.db.ToolCalls().Save(tc)
}

func toolResultStatus(s tools.ToolStatus) store.ToolResultStatus {
	switch s {
	case tools.StatusSuccess:
		return store.ToolResultSuccess
	case tools.StatusCancelled:
		return store.ToolResultCancelled
	default:
		return store.ToolResultError
	}
}

func toolBlockStatus(s tools.ToolStatus) store.ToolBlockStatus {
	switch s {
	case tools.StatusSuccess:
		return store.ToolBlockSuccess
	default:
		return store.ToolBlockError
	}
}
