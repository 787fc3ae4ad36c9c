package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync/atomic"
)

// StreamableHTTPTransport implements the newer MCP "Streamable HTTP"
// transport: every call is a single POST to one endpoint URL, and the
// response is either a plain application/json body (one Response) or a
// text/event-stream body carrying one or more "message" events, the last
// of which is the Response matching the request's id. Unlike SSETransport
// there is no separate long-lived stream or endpoint-discovery step — each
// call round-trips over its own HTTP request, closer in shape to
// internal/transport/client.go's one-request-one-response Client.
type StreamableHTTPTransport struct {
	endpoint string
	http     *http.Client
	headers  map[string]string
	nextID   int64

	sessionID string
}

// NewStreamableHTTPTransport builds a transport posting to endpoint.
func NewStreamableHTTPTransport(endpoint string, headers map[string]string) *StreamableHTTPTransport {
	return &StreamableHTTPTransport{endpoint: endpoint, http: &http.Client{}, headers: headers}
}

func (t *StreamableHTTPTransport) call(ctx context.Context, method string, params any) (Response, error) {
	id := atomic.AddInt64(&t.nextID, 1)
	req := newRequest(id, method, params)
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("mcp: marshal %s: %w", method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("mcp: build %s request: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	if t.sessionID != "" {
		httpReq.Header.Set("Mcp-Session-Id", t.sessionID)
	}
	for k, v := range t.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.http.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("mcp: post %s: %w", method, err)
	}
	defer resp.Body.Close()

	if sid := resp.Header.Get("Mcp-Session-Id"); sid != "" {
		t.sessionID = sid
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return Response{}, fmt.Errorf("mcp: post %s: HTTP %d: %s", method, resp.StatusCode, string(body))
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch mediaType {
	case "text/event-stream":
		return readSSEResponse(resp.Body, id)
	default:
		var r Response
		if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
			return Response{}, fmt.Errorf("mcp: decode %s response: %w", method, err)
		}
		return r, nil
	}
}

// readSSEResponse scans an event-stream body for "message" events, returning
// the one whose id matches wantID — the final event in a well-behaved
// server's stream for a single request, but earlier events (e.g. progress
// notifications) are skipped rather than assumed absent.
func readSSEResponse(body io.Reader, wantID int64) (Response, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var data bytes.Buffer
	flush := func() (Response, bool) {
		if data.Len() == 0 {
			return Response{}, false
		}
		payload := strings.TrimSuffix(data.String(), "\n")
		data.Reset()
		var resp Response
		if err := json.Unmarshal([]byte(payload), &resp); err != nil {
			return Response{}, false
		}
		return resp, resp.ID == wantID
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if resp, ok := flush(); ok {
				return resp, nil
			}
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			data.WriteByte('\n')
		}
	}
	if resp, ok := flush(); ok {
		return resp, nil
	}
	return Response{}, fmt.Errorf("mcp: event stream ended without a matching response")
}

func (t *StreamableHTTPTransport) Initialize(ctx context.Context) (InitializeResult, error) {
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

func (t *StreamableHTTPTransport) ListTools(ctx context.Context) ([]Tool, error) {
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

func (t *StreamableHTTPTransport) CallTool(ctx context.Context, name string, arguments map[string]any) (CallToolResult, error) {
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

// Close is a no-op: StreamableHTTP has no persistent connection to tear
// down beyond the http.Client's own idle-connection pool.
func (t *StreamableHTTPTransport) Close() error { return nil }
