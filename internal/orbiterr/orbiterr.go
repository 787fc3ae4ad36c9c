// Package orbiterr defines the error taxonomy shared across OrbitX's
// subsystems: a closed set of error kinds plus a wrapping type that carries
// one of them through layer boundaries so callers can branch on kind with
// errors.Is/errors.As instead of string-matching messages.
package orbiterr

import (
	"errors"
	"fmt"
)

// Kind classifies an error without binding callers to its message text.
type Kind string

const (
	// PTY / Mux
	KindPaneNotFound     Kind = "pane_not_found"
	KindPaneDead         Kind = "pane_dead"
	KindPtySpawnFailed   Kind = "pty_spawn_failed"
	KindIoRead           Kind = "io_read"
	KindIoWrite          Kind = "io_write"

	// Storage
	KindDbQueryFailed  Kind = "db_query_failed"
	KindMigrationFailed Kind = "migration_failed"
	KindDecryptFailed  Kind = "decrypt_failed"

	// LLM
	KindModelNotFound        Kind = "model_not_found"
	KindUnsupportedProvider  Kind = "unsupported_provider"
	KindInvalidEmbeddingModel Kind = "invalid_embedding_model"
	KindProviderHttpError    Kind = "provider_http_error"
	KindStreamParseError     Kind = "stream_parse_error"

	// Tools
	KindToolNotFound        Kind = "tool_not_found"
	KindToolInvalidArguments Kind = "tool_invalid_arguments"
	KindToolExecutionFailed Kind = "tool_execution_failed"
	KindToolTimedOut        Kind = "tool_timed_out"
	KindToolCancelled       Kind = "tool_cancelled"

	// MCP
	KindMcpTransportError Kind = "mcp_transport_error"
	KindMcpProtocolError  Kind = "mcp_protocol_error"
	KindMcpDisabled       Kind = "mcp_disabled"

	// Checkpoint / vector index
	KindCheckpointNotFound     Kind = "checkpoint_not_found"
	KindBlobNotFound           Kind = "blob_not_found"
	KindInvalidWorkspace       Kind = "invalid_workspace"
	KindVectorDimensionMismatch Kind = "vector_dimension_mismatch"
	KindInvalidSpan            Kind = "invalid_span"

	// Prompt / settings
	KindXmlParseError     Kind = "xml_parse_error"
	KindPromptBuildError  Kind = "prompt_build_error"
	KindSettingsMergeError Kind = "settings_merge_error"
)

// Error wraps an underlying cause with a Kind so it can be classified
// without inspecting its message.
type Error struct {
	Kind    Kind
	Op      string // the operation that failed, e.g. "store.FindByID"
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, orbiterr.New(orbiterr.KindPaneDead, "", nil)) or,
// more commonly, compare the Kind returned by KindOf(err).
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// New constructs an *Error for the given operation and kind, wrapping cause
// (which may be nil).
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Wrap is a convenience for the common "%s: %w" layering pattern used
// throughout the repository/checkpoint/mux boundaries: it tags err with
// kind if err is not already a tagged *Error, otherwise it rewraps
// preserving the innermost kind.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	if inner, ok := KindOf(err); ok {
		kind = inner
	}
	return New(kind, op, err)
}

// KindOf extracts the Kind of err if it (or something it wraps) is an
// *Error, and reports whether one was found.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
