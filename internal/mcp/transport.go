package mcp

import "context"

// Transport is the one interface all three MCP wire protocols implement.
// Initialize must be called once before ListTools or CallTool. A transport
// is not reused after Close: Registry.Reload closes the old transports and
// builds and initializes new ones.
type Transport interface {
	// Initialize negotiates protocol version and capabilities with the
	// server. Must be called before any other method.
	Initialize(ctx context.Context) (InitializeResult, error)

	// ListTools returns every tool the server currently exposes.
	ListTools(ctx context.Context) ([]Tool, error)

	// CallTool invokes one tool by name with the given arguments.
	CallTool(ctx context.Context, name string, arguments map[string]any) (CallToolResult, error)

	// Close tears down the underlying connection/process. Safe to call
	// more than once.
	Close() error
}
