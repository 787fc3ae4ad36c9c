package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/orbitx-dev/orbitx/internal/config"
	"github.com/orbitx-dev/orbitx/internal/tools"
)

// fakeTransport is a minimal in-memory Transport double, used to test the
// registry/adapter layer without a real subprocess or HTTP server.
type fakeTransport struct {
	tools  []Tool
	calls  []string
	closed bool
}

func (f *fakeTransport) Initialize(ctx context.Context) (InitializeResult, error) {
	return InitializeResult{ProtocolVersion: protocolVersion}, nil
}

func (f *fakeTransport) ListTools(ctx context.Context) ([]Tool, error) { return f.tools, nil }

func (f *fakeTransport) CallTool(ctx context.Context, name string, arguments map[string]any) (CallToolResult, error) {
	f.calls = append(f.calls, name)
	if name == "boom" {
		return CallToolResult{IsError: true, Content: []ContentItem{{Type: "text", Text: "tool failed"}}}, nil
	}
	return CallToolResult{Content: []ContentItem{{Type: "text", Text: "ok:" + fmt.Sprint(arguments["x"])}}}, nil
}

func (f *fakeTransport) Close() error { f.closed = true; return nil }

func TestRegisterToolsAdaptsAndDispatches(t *testing.T) {
	ft := &fakeTransport{tools: []Tool{
		{Name: "search", Description: "search the web", InputSchema: json.RawMessage(`{"type":"object","properties":{"x":{"type":"string"}}}`)},
	}}
	client := &Client{Name: "web", Transport: ft, Tools: ft.tools}

	reg := tools.NewRegistry()
	if err := RegisterTools(reg, client); err != nil {
		t.Fatalf("RegisterTools: %v", err)
	}

	def, ok := reg.Get("mcp:web:search")
	if !ok {
		t.Fatal("expected mcp:web:search to be registered")
	}
	if def.Description != "search the web" {
		t.Fatalf("Description = %q", def.Description)
	}

	result, err := def.Handler(context.Background(), map[string]any{"x": "cats"})
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	if result.Status != tools.StatusSuccess || result.Text() != "ok:cats" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(ft.calls) != 1 || ft.calls[0] != "search" {
		t.Fatalf("calls = %v", ft.calls)
	}
}

func TestRegisterToolsMapsIsErrorToStatusError(t *testing.T) {
	ft := &fakeTransport{tools: []Tool{{Name: "boom", Description: "always fails", InputSchema: json.RawMessage(`{"type":"object"}`)}}}
	client := &Client{Name: "flaky", Transport: ft, Tools: ft.tools}

	reg := tools.NewRegistry()
	if err := RegisterTools(reg, client); err != nil {
		t.Fatalf("RegisterTools: %v", err)
	}
	def, _ := reg.Get("mcp:flaky:boom")
	result, err := def.Handler(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	if result.Status != tools.StatusError || result.Text() != "tool failed" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestUnregisterToolsRemovesByName(t *testing.T) {
	ft := &fakeTransport{tools: []Tool{{Name: "search", Description: "d", InputSchema: json.RawMessage(`{"type":"object"}`)}}}
	client := &Client{Name: "web", Transport: ft, Tools: ft.tools}

	reg := tools.NewRegistry()
	if err := RegisterTools(reg, client); err != nil {
		t.Fatalf("RegisterTools: %v", err)
	}
	UnregisterTools(reg, client)
	if _, ok := reg.Get("mcp:web:search"); ok {
		t.Fatal("expected mcp:web:search to be unregistered")
	}
}

func newStreamableHTTPTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		switch req.Method {
		case "initialize":
			writeJSONResponse(w, req.ID, InitializeResult{ProtocolVersion: protocolVersion})
		case "tools/list":
			writeJSONResponse(w, req.ID, ListToolsResult{Tools: []Tool{{Name: "echo", Description: "echoes"}}})
		case "tools/call":
			writeJSONResponse(w, req.ID, CallToolResult{Content: []ContentItem{{Type: "text", Text: "called"}}})
		}
	}))
}

func TestRegistryInitIsIdempotentAndReloadReconnects(t *testing.T) {
	srv := newStreamableHTTPTestServer(t)
	defer srv.Close()

	r := NewRegistry()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	servers := map[string]config.MCPServer{"demo": {Type: "streamableHttp", URL: srv.URL}}

	if err := r.Init(ctx, "/work", servers); err != nil {
		t.Fatalf("Init: %v", err)
	}
	clients := r.Clients("/work")
	if len(clients) != 1 || len(clients[0].Tools) != 1 {
		t.Fatalf("Clients after Init = %+v", clients)
	}
	firstTransport := clients[0].Transport

	// Init again must be a no-op: the same transport stays registered.
	if err := r.Init(ctx, "/work", servers); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	if r.Clients("/work")[0].Transport != firstTransport {
		t.Fatal("Init was not idempotent: transport was replaced")
	}

	if err := r.Reload(ctx, "/work", servers); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if r.Clients("/work")[0].Transport == firstTransport {
		t.Fatal("Reload did not reconnect: same transport instance")
	}

	r.Close("/work")
	if got := r.Clients("/work"); len(got) != 0 {
		t.Fatalf("Clients after Close = %+v, want empty", got)
	}
}

func TestStreamableHTTPTransportHandlesPlainJSON(t *testing.T) {
	srv := newStreamableHTTPTestServer(t)
	defer srv.Close()

	transport := NewStreamableHTTPTransport(srv.URL, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := transport.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	toolList, err := transport.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(toolList) != 1 || toolList[0].Name != "echo" {
		t.Fatalf("ListTools = %+v", toolList)
	}
	result, err := transport.CallTool(ctx, "echo", map[string]any{"text": "hi"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if len(result.Content) != 1 || result.Content[0].Text != "called" {
		t.Fatalf("CallTool result = %+v", result)
	}
}

func TestStreamableHTTPTransportHandlesEventStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		resultBody, _ := json.Marshal(CallToolResult{Content: []ContentItem{{Type: "text", Text: "streamed"}}})
		resp := Response{JSONRPC: jsonrpcVersion, ID: req.ID, Result: resultBody}
		payload, _ := json.Marshal(resp)
		fmt.Fprintf(w, "event: message\ndata: %s\n\n", payload)
		if flusher != nil {
			flusher.Flush()
		}
	}))
	defer srv.Close()

	transport := NewStreamableHTTPTransport(srv.URL, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := transport.CallTool(ctx, "echo", map[string]any{})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if len(result.Content) != 1 || result.Content[0].Text != "streamed" {
		t.Fatalf("CallTool result = %+v", result)
	}
}

func TestSSETransportNegotiatesEndpoint(t *testing.T) {
	mux := http.NewServeMux()
	var postPath string
	mux.HandleFunc("/sse", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", postPath)
		flusher.Flush()
		<-r.Context().Done()
	})
	mux.HandleFunc("/messages", func(w http.ResponseWriter, r *http.Request) {
		var req Request
		json.NewDecoder(r.Body).Decode(&req)
		w.WriteHeader(http.StatusAccepted)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	postPath = srv.URL + "/messages"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	transport, err := NewSSETransport(ctx, srv.URL+"/sse", nil)
	if err != nil {
		t.Fatalf("NewSSETransport: %v", err)
	}
	defer transport.Close()

	transport.mu.Lock()
	got := transport.endpointURL
	transport.mu.Unlock()
	if got != postPath {
		t.Fatalf("endpointURL = %q, want %q", got, postPath)
	}
}

// TestSSEReadLoopDispatchesMessageEvents drives readLoop directly over a
// pipe, since the real server pushes tools/call responses asynchronously
// on the SSE stream rather than in the POST's own response — something an
// httptest handler pair can't reproduce across two separate connections.
func TestSSEReadLoopDispatchesMessageEvents(t *testing.T) {
	pr, pw := io.Pipe()
	transport := &SSETransport{pending: make(map[int64]chan Response), endpointCh: make(chan struct{})}
	ch := make(chan Response, 1)
	transport.pending[7] = ch

	go transport.readLoop(pr)

	resp := Response{JSONRPC: jsonrpcVersion, ID: 7, Result: json.RawMessage(`{"ok":true}`)}
	payload, _ := json.Marshal(resp)
	go func() {
		fmt.Fprintf(pw, "event: message\ndata: %s\n\n", payload)
		pw.Close()
	}()

	select {
	case got := <-ch:
		if got.ID != 7 {
			t.Fatalf("got.ID = %d, want 7", got.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched message")
	}
}

func writeJSONResponse(w http.ResponseWriter, id int64, result any) {
	body, _ := json.Marshal(result)
	resp := Response{JSONRPC: jsonrpcVersion, ID: id, Result: body}
	json.NewEncoder(w).Encode(resp)
}
