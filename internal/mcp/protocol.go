// Package mcp implements spec.md §4.12's MCP client: three transports
// (Stdio, SSE, StreamableHTTP) behind one Transport interface, wrapping a
// remote server's tools as adapters conforming to §4.8's tool interface.
//
// No MCP Go SDK ships source anywhere in the retrieved example pack — only
// a bare go.mod mention of mark3labs/mcp-go under other_examples/manifests,
// with no code behind it to ground an implementation on — so the JSON-RPC
// framing here is hand-rolled directly over encoding/json, the same way the
// teacher hand-rolls its own wire protocols (internal/ws/protocol.go's
// typed envelope, internal/transport/client.go's JSON-over-HTTP client).
package mcp

import "encoding/json"

const jsonrpcVersion = "2.0"

// Request is one JSON-RPC 2.0 request. ID is omitted for notifications.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  any             `json:"params,omitempty"`
}

// Response is one JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

func newRequest(id int64, method string, params any) Request {
	return Request{JSONRPC: jsonrpcVersion, ID: id, Method: method, Params: params}
}

// InitializeParams is sent as the first request on every transport.
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      ClientInfo     `json:"clientInfo"`
}

// ClientInfo identifies this client to the server during initialize.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the server's reply to initialize.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ClientInfo     `json:"serverInfo"`
}

// Tool is one tool the server exposes, as returned by tools/list.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ListToolsResult is the server's reply to tools/list.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolParams is the request body for tools/call.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ContentItem is one element of a tools/call result's content array.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// CallToolResult is the server's reply to tools/call.
type CallToolResult struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

const protocolVersion = "2025-03-26"
