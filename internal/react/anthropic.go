package react

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// messagesClient is the subset of the Anthropic SDK used here, so tests can
// substitute a fake without a live API key.
type messagesClient interface {
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// AnthropicStreamer is the direct-API LLMStreamer backed by
// github.com/anthropics/anthropic-sdk-go, alongside the CLI-subprocess
// ClaudeCLIStreamer for users who prefer the claude binary.
type AnthropicStreamer struct {
	msg         messagesClient
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropicStreamer builds a streamer using the default Anthropic HTTP
// client, reading apiKey directly (callers source it from settings/env).
func NewAnthropicStreamer(apiKey, model string, maxTokens int64) *AnthropicStreamer {
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicStreamer{msg: &client.Messages, model: model, maxTokens: maxTokens}
}

// NewAnthropicStreamerWithClient injects a messagesClient, used by tests.
func NewAnthropicStreamerWithClient(msg messagesClient, model string, maxTokens int64) *AnthropicStreamer {
	return &AnthropicStreamer{msg: msg, model: model, maxTokens: maxTokens}
}

// WithTemperature sets the sampling temperature used for every Stream call.
func (a *AnthropicStreamer) WithTemperature(t float64) *AnthropicStreamer {
	a.temperature = t
	return a
}

func (a *AnthropicStreamer) Stream(ctx context.Context, messages []LLMMessage, tools []ToolSchema) (<-chan StreamChunk, error) {
	params, err := a.prepareRequest(messages, tools)
	if err != nil {
		return nil, err
	}
	stream := a.msg.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("react: anthropic stream: %w", err)
	}
	s := newAnthropicSession(ctx, stream)
	go s.run()
	return s.out, nil
}

func (a *AnthropicStreamer) prepareRequest(messages []LLMMessage, tools []ToolSchema) (sdk.MessageNewParams, error) {
	maxTokens := a.maxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	params := sdk.MessageNewParams{
		MaxTokens: maxTokens,
		Model:     sdk.Model(a.model),
	}
	if a.temperature > 0 {
		params.Temperature = sdk.Float(a.temperature)
	}

	var system []sdk.TextBlockParam
	var conv []sdk.MessageParam
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			if m.Content != "" {
				system = append(system, sdk.TextBlockParam{Text: m.Content})
			}
		case RoleUser:
			blocks := []sdk.ContentBlockParamUnion{}
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, tr := range m.ToolResults {
				blocks = append(blocks, sdk.NewToolResultBlock(tr.CallID, tr.Content, tr.IsError))
			}
			if len(blocks) > 0 {
				conv = append(conv, sdk.NewUserMessage(blocks...))
			}
		case RoleAssistant:
			blocks := []sdk.ContentBlockParamUnion{}
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			if len(blocks) > 0 {
				conv = append(conv, sdk.NewAssistantMessage(blocks...))
			}
		}
	}
	if len(system) > 0 {
		params.System = system
	}
	params.Messages = conv

	if len(tools) > 0 {
		toolList := make([]sdk.ToolUnionParam, 0, len(tools))
		for _, t := range tools {
			schema, err := decodeToolSchema(t.Schema)
			if err != nil {
				return sdk.MessageNewParams{}, fmt.Errorf("react: tool %q schema: %w", t.Name, err)
			}
			u := sdk.ToolUnionParamOfTool(schema, t.Name)
			if u.OfTool != nil {
				u.OfTool.Description = sdk.String(t.Description)
			}
			toolList = append(toolList, u)
		}
		params.Tools = toolList
	}
	return params, nil
}

func decodeToolSchema(raw []byte) (sdk.ToolInputSchemaParam, error) {
	if len(raw) == 0 {
		return sdk.ToolInputSchemaParam{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	return sdk.ToolInputSchemaParam{ExtraFields: m}, nil
}

// anthropicSession turns one NewStreaming call into our StreamChunk vocabulary.
type anthropicSession struct {
	ctx    context.Context
	stream *ssestream.Stream[sdk.MessageStreamEventUnion]
	out    chan StreamChunk

	mu        sync.Mutex
	textSoFar strings.Builder
	started   bool

	toolBlocks map[int]*toolBuffer
}

type toolBuffer struct {
	id        string
	name      string
	fragments []string
}

func newAnthropicSession(ctx context.Context, stream *ssestream.Stream[sdk.MessageStreamEventUnion]) *anthropicSession {
	return &anthropicSession{
		ctx:        ctx,
		stream:     stream,
		out:        make(chan StreamChunk, 16),
		toolBlocks: make(map[int]*toolBuffer),
	}
}

func (s *anthropicSession) run() {
	defer close(s.out)
	defer s.stream.Close()

	var usage *Usage
	var stopReason string

	for s.stream.Next() {
		select {
		case <-s.ctx.Done():
			s.emit(StreamChunk{Kind: ChunkError, Err: s.ctx.Err()})
			return
		default:
		}
		event := s.stream.Current()
		switch ev := event.AsAny().(type) {
		case sdk.ContentBlockStartEvent:
			idx := int(ev.Index)
			if toolUse, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
				s.toolBlocks[idx] = &toolBuffer{id: toolUse.ID, name: toolUse.Name}
			}
		case sdk.ContentBlockDeltaEvent:
			idx := int(ev.Index)
			switch delta := ev.Delta.AsAny().(type) {
			case sdk.TextDelta:
				if delta.Text == "" {
					continue
				}
				if !s.started {
					s.started = true
					s.emit(StreamChunk{Kind: ChunkTextStart})
				}
				s.textSoFar.WriteString(delta.Text)
				s.emit(StreamChunk{Kind: ChunkTextDelta, Delta: delta.Text, Text: s.textSoFar.String()})
			case sdk.InputJSONDelta:
				if tb := s.toolBlocks[idx]; tb != nil && delta.PartialJSON != "" {
					tb.fragments = append(tb.fragments, delta.PartialJSON)
				}
			}
		case sdk.MessageDeltaEvent:
			stopReason = string(ev.Delta.StopReason)
			usage = &Usage{
				InputTokens:  int(ev.Usage.InputTokens),
				OutputTokens: int(ev.Usage.OutputTokens),
			}
		case sdk.MessageStopEvent:
			if s.started {
				s.emit(StreamChunk{Kind: ChunkTextEnd, Text: s.textSoFar.String()})
			}
			finish, calls := classifyFinish(stopReason, s.toolBlocks)
			s.emit(StreamChunk{Kind: ChunkFinish, FinishReason: finish, Usage: usage, ToolCalls: calls})
		}
	}
	if err := s.stream.Err(); err != nil {
		s.emit(StreamChunk{Kind: ChunkError, Err: err})
	}
}

func (s *anthropicSession) emit(c StreamChunk) {
	select {
	case s.out <- c:
	case <-s.ctx.Done():
	}
}

func classifyFinish(stopReason string, blocks map[int]*toolBuffer) (FinishReason, []ToolCallRequest) {
	var calls []ToolCallRequest
	for _, tb := range blocks {
		calls = append(calls, ToolCallRequest{ID: tb.id, Name: tb.name, Arguments: decodeToolArgs(tb.fragments)})
	}
	switch stopReason {
	case "tool_use":
		return FinishToolCalls, calls
	case "max_tokens":
		return FinishLength, calls
	case "stop_sequence", "end_turn":
		return FinishStop, calls
	default:
		if len(calls) > 0 {
			return FinishToolCalls, calls
		}
		return FinishStop, calls
	}
}

func decodeToolArgs(fragments []string) map[string]any {
	joined := strings.Join(fragments, "")
	if strings.TrimSpace(joined) == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(joined), &args); err != nil {
		return map[string]any{}
	}
	return args
}
