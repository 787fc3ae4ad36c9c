package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// SSETransport implements the older MCP HTTP+SSE transport: a long-lived GET
// establishes an event stream; the stream's first event ("endpoint") gives
// the URL to POST JSON-RPC requests to, and every subsequent response
// arrives asynchronously as a "message" event on the same stream rather
// than as the POST's own HTTP response body.
//
// Grounded on internal/ws/client.go's long-lived-connection-plus-handler
// shape (a background goroutine reads frames and dispatches them, callers
// block on a channel for their specific reply) adapted from a WebSocket
// frame reader to an SSE "event:"/"data:" line reader, since nothing in the
// retrieved pack ships an SSE client and net/http has no built-in one.
type SSETransport struct {
	baseURL string
	http    *http.Client
	headers map[string]string

	nextID int64

	mu          sync.Mutex
	pending     map[int64]chan Response
	endpointURL string
	endpointCh  chan struct{}
	closed      bool
	cancel      context.CancelFunc
}

// NewSSETransport starts the SSE stream against sseURL (the server's event
// endpoint) and returns once the server's "endpoint" event has been read.
func NewSSETransport(ctx context.Context, sseURL string, headers map[string]string) (*SSETransport, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	t := &SSETransport{
		baseURL:    sseURL,
		http:       &http.Client{},
		headers:    headers,
		pending:    make(map[int64]chan Response),
		endpointCh: make(chan struct{}),
		cancel:     cancel,
	}

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, sseURL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("mcp: sse request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := t.http.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("mcp: sse connect: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("mcp: sse connect: HTTP %d", resp.StatusCode)
	}

	go t.readLoop(resp.Body)

	select {
	case <-t.endpointCh:
	case <-time.After(10 * time.Second):
		cancel()
		return nil, fmt.Errorf("mcp: sse: timed out waiting for endpoint event")
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}
	return t, nil
}

// readLoop parses "event:"/"data:" SSE frames, dispatching "endpoint" events
// to resolve the POST URL and "message" events as JSON-RPC responses.
func (t *SSETransport) readLoop(body io.ReadCloser) {
	defer body.Close()
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var event string
	var data bytes.Buffer
	flush := func() {
		if data.Len() == 0 {
			return
		}
		payload := strings.TrimSuffix(data.String(), "\n")
		data.Reset()
		switch event {
		case "endpoint":
			t.resolveEndpoint(payload)
		case "message", "":
			t.dispatchMessage(payload)
		}
		event = ""
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			data.WriteByte('\n')
		}
	}
	flush()

	t.mu.Lock()
	for id, ch := range t.pending {
		delete(t.pending, id)
		close(ch)
	}
	t.mu.Unlock()
}

func (t *SSETransport) resolveEndpoint(payload string) {
	resolved := payload
	if u, err := url.Parse(payload); err == nil && !u.IsAbs() {
		if base, err := url.Parse(t.baseURL); err == nil {
			resolved = base.ResolveReference(u).String()
		}
	}
	t.mu.Lock()
	t.endpointURL = resolved
	t.mu.Unlock()
	close(t.endpointCh)
}

func (t *SSETransport) dispatchMessage(payload string) {
	var resp Response
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return
	}
	t.mu.Lock()
	ch, ok := t.pending[resp.ID]
	if ok {
		delete(t.pending, resp.ID)
	}
	t.mu.Unlock()
	if ok {
		ch <- resp
	}
}

func (t *SSETransport) call(ctx context.Context, method string, params any) (Response, error) {
	id := atomic.AddInt64(&t.nextID, 1)
	req := newRequest(id, method, params)
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("mcp: marshal %s: %w", method, err)
	}

	ch := make(chan Response, 1)
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return Response{}, fmt.Errorf("mcp: transport closed")
	}
	endpoint := t.endpointURL
	t.pending[id] = ch
	t.mu.Unlock()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("mcp: build %s request: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range t.headers {
		httpReq.Header.Set(k, v)
	}
	resp, err := t.http.Do(httpReq)
	if err != nil {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return Response{}, fmt.Errorf("mcp: post %s: %w", method, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return Response{}, fmt.Errorf("mcp: post %s: HTTP %d", method, resp.StatusCode)
	}

	select {
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return Response{}, ctx.Err()
	case r, ok := <-ch:
		if !ok {
			return Response{}, fmt.Errorf("mcp: sse stream closed while awaiting %s", method)
		}
		return r, nil
	}
}

func (t *SSETransport) Initialize(ctx context.Context) (InitializeResult, error) {
	resp, err := t.call(ctx, "initialize", InitializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      ClientInfo{Name: "orbitx", Version: "1"},
	})
	if err != nil {
		return InitializeResult{}, err
	}
	if resp.Error != nil {
		return InitializeResult{}, resp.Error
	}
	var result InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return InitializeResult{}, fmt.Errorf("mcp: decode initialize result: %w", err)
	}
	return result, nil
}

func (t *SSETransport) ListTools(ctx context.Context) ([]Tool, error) {
	resp, err := t.call(ctx, "tools/list", map[string]any{})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	var result ListToolsResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("mcp: decode tools/list result: %w", err)
	}
	return result.Tools, nil
}

func (t *SSETransport) CallTool(ctx context.Context, name string, arguments map[string]any) (CallToolResult, error) {
	resp, err := t.call(ctx, "tools/call", CallToolParams{Name: name, Arguments: arguments})
	if err != nil {
		return CallToolResult{}, err
	}
	if resp.Error != nil {
		return CallToolResult{}, resp.Error
	}
	var result CallToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return CallToolResult{}, fmt.Errorf("mcp: decode tools/call result: %w", err)
	}
	return result, nil
}

func (t *SSETransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	t.cancel()
	return nil
}
