// Package agentevents implements the agent event stream from spec.md §6: a
// tagged-variant event type consumed by any front-end (the Tauri event
// channel in the original product; a WebSocket stream here, since the
// desktop IPC layer itself is out of scope per spec.md §1). The ordering
// guarantee spec.md §6 states — "for one task, MessageCreated precedes any
// BlockAppended for its id; MessageFinished precedes TaskCompleted" — is the
// caller's responsibility (internal/react.Executor emits events in that
// order); Hub only fans them out, it never reorders or buffers per-kind.
package agentevents

// Kind tags one Event variant.
type Kind string

const (
	KindTaskCreated              Kind = "TaskCreated"
	KindMessageCreated           Kind = "MessageCreated"
	KindBlockAppended            Kind = "BlockAppended"
	KindBlockUpdated             Kind = "BlockUpdated"
	KindMessageFinished          Kind = "MessageFinished"
	KindTaskCompleted            Kind = "TaskCompleted"
	KindTaskError                Kind = "TaskError"
	KindTaskCancelled            Kind = "TaskCancelled"
	KindToolConfirmationRequest  Kind = "ToolConfirmationRequested"
)

// Event is the closed sum type from spec.md §6, represented as one flat
// struct with only the fields relevant to Kind populated — the same
// convention internal/term.Notification and internal/tools.ToolResult use
// for their own tagged variants.
type Event struct {
	Kind           Kind   `json:"kind"`
	ExecutionID    string `json:"execution_id"`
	SessionID      string `json:"session_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	BlockID        string `json:"block_id,omitempty"`
	Text           string `json:"text,omitempty"`
	Error          string `json:"error,omitempty"`
	RequestID      string `json:"request_id,omitempty"`
}

func TaskCreated(executionID, sessionID string) Event {
	return Event{Kind: KindTaskCreated, ExecutionID: executionID, SessionID: sessionID}
}

func MessageCreated(executionID, messageID string) Event {
	return Event{Kind: KindMessageCreated, ExecutionID: executionID, MessageID: messageID}
}

func BlockAppended(executionID, messageID, blockID, text string) Event {
	return Event{Kind: KindBlockAppended, ExecutionID: executionID, MessageID: messageID, BlockID: blockID, Text: text}
}

func BlockUpdated(executionID, messageID, blockID, text string) Event {
	return Event{Kind: KindBlockUpdated, ExecutionID: executionID, MessageID: messageID, BlockID: blockID, Text: text}
}

func MessageFinished(executionID, messageID string) Event {
	return Event{Kind: KindMessageFinished, ExecutionID: executionID, MessageID: messageID}
}

func TaskCompleted(executionID string) Event {
	return Event{Kind: KindTaskCompleted, ExecutionID: executionID}
}

func TaskError(executionID, reason string) Event {
	return Event{Kind: KindTaskError, ExecutionID: executionID, Error: reason}
}

func TaskCancelled(executionID string) Event {
	return Event{Kind: KindTaskCancelled, ExecutionID: executionID}
}

func ToolConfirmationRequested(executionID, requestID string) Event {
	return Event{Kind: KindToolConfirmationRequest, ExecutionID: executionID, RequestID: requestID}
}
