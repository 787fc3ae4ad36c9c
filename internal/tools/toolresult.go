package tools

import "encoding/json"

// ToolStatus is the closed outcome set for one tool invocation (spec.md
// §4.8). Distinct from the process-level error a Handler can still return
// (e.g. a programming bug) — a Handler should prefer returning a ToolResult
// with Status Error over a Go error whenever the failure is something the
// model should see and potentially recover from.
type ToolStatus string

const (
	StatusSuccess   ToolStatus = "Success"
	StatusError     ToolStatus = "Error"
	StatusCancelled ToolStatus = "Cancelled"
)

// ContentBlockKind distinguishes the shape of one block inside a ToolResult.
type ContentBlockKind string

const (
	ContentText  ContentBlockKind = "text"
	ContentImage ContentBlockKind = "image"
)

// ContentBlock is one piece of a tool's structured output.
type ContentBlock struct {
	Kind ContentBlockKind
	Text string
	// MimeType/Data are set only for ContentImage blocks.
	MimeType string
	Data     []byte
}

// TextBlock is a convenience constructor for the overwhelmingly common case.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Kind: ContentText, Text: text}
}

// ToolResult is the structured outcome of one tool call — spec.md §4.8:
// "content blocks, status, cancel_reason, execution_time_ms, ext_info JSON".
type ToolResult struct {
	CallID          string
	Content         []ContentBlock
	Status          ToolStatus
	CancelReason    string
	ExecutionTimeMs int64
	ExtInfo         json.RawMessage
}

// Text concatenates every text content block, for callers that only need a
// flat string (e.g. rendering into a terminal pane or a prompt).
func (r ToolResult) Text() string {
	var out string
	for _, b := range r.Content {
		if b.Kind == ContentText {
			out += b.Text
		}
	}
	return out
}

func errorResult(callID string, err error) ToolResult {
	return ToolResult{CallID: callID, Status: StatusError, Content: []ContentBlock{TextBlock(err.Error())}}
}
