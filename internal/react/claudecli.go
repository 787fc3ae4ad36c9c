package react

import (
	"context"
	"strings"
	"time"

	"github.com/orbitx-dev/orbitx/internal/agent"
)

// ClaudeCLIStreamer adapts the teacher's subprocess-based agent.Claude (the
// `claude` binary driven via `-p ... --output-format stream-json`) to the
// LLMStreamer contract, for users who prefer the CLI over a direct API key.
// It has no visibility into tool-call content blocks — the CLI manages its
// own tool loop internally — so a turn never resolves to ContinueWithTools,
// only to Complete (or Empty when the turn has no text);
// callers should prefer AnthropicStreamer when the executor needs to
// dispatch tools itself.
type ClaudeCLIStreamer struct {
	agent        agent.Agent
	allowedTools []string
	timeout      time.Duration
}

// NewClaudeCLIStreamer wraps an agent.Agent (normally *agent.Claude).
func NewClaudeCLIStreamer(a agent.Agent, allowedTools []string) *ClaudeCLIStreamer {
	return &ClaudeCLIStreamer{agent: a, allowedTools: allowedTools}
}

// WithTimeout sets the per-turn subprocess timeout passed to agent.RunOpts.
func (c *ClaudeCLIStreamer) WithTimeout(d time.Duration) *ClaudeCLIStreamer {
	c.timeout = d
	return c
}

func (c *ClaudeCLIStreamer) Stream(ctx context.Context, messages []LLMMessage, _ []ToolSchema) (<-chan StreamChunk, error) {
	prompt, system := flattenMessages(messages)

	s, err := c.agent.Run(ctx, prompt, agent.RunOpts{
		AllowedTools: c.allowedTools,
		SystemPrompt: system,
		Timeout:      c.timeout,
	})
	if err != nil {
		return nil, err
	}

	out := make(chan StreamChunk, 16)
	go func() {
		defer close(out)
		var text strings.Builder
		started := false
		for {
			chunk, ok := s.Next()
			if !ok {
				break
			}
			if chunk.Text == "" {
				continue
			}
			if !started {
				started = true
				out <- StreamChunk{Kind: ChunkTextStart}
			}
			text.WriteString(chunk.Text)
			out <- StreamChunk{Kind: ChunkTextDelta, Delta: chunk.Text, Text: text.String()}
		}
		if err := s.Err(); err != nil {
			out <- StreamChunk{Kind: ChunkError, Err: err}
			return
		}
		if started {
			out <- StreamChunk{Kind: ChunkTextEnd, Text: text.String()}
		}
		in, outTok := s.Tokens()
		out <- StreamChunk{
			Kind:         ChunkFinish,
			FinishReason: FinishStop,
			Usage:        &Usage{InputTokens: in, OutputTokens: outTok},
		}
	}()
	return out, nil
}

// flattenMessages collapses the transcript into one prompt string plus a
// system preamble, since the claude CLI takes a single -p prompt argument.
func flattenMessages(messages []LLMMessage) (prompt, system string) {
	var sys, body strings.Builder
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			sys.WriteString(m.Content)
			sys.WriteString("\n")
		case RoleUser:
			body.WriteString("User: ")
			body.WriteString(m.Content)
			body.WriteString("\n")
		case RoleAssistant:
			body.WriteString("Assistant: ")
			body.WriteString(m.Content)
			body.WriteString("\n")
		}
	}
	return strings.TrimSpace(body.String()), strings.TrimSpace(sys.String())
}
