package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
)

// StdioTransport launches a subprocess and exchanges newline-delimited
// JSON-RPC messages over its stdin/stdout, one message per line — the
// framing spec.md §4.12 calls "framed JSON-RPC on stdout". Grounded on
// internal/transport/client.go's request/response round-trip shape
// (marshal request, decode typed response), generalized from HTTP-over-
// unix-socket to a subprocess pipe.
type StdioTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Scanner

	nextID int64

	mu      sync.Mutex // guards pending, readErr and closed; each request is one stdin Write
	pending map[int64]chan Response
	readErr error
	closed  bool
}

// NewStdioTransport starts name with args as a subprocess, appending env to
// its inherited environment, and begins reading its stdout.
func NewStdioTransport(name string, args []string, env []string) (*StdioTransport, error) {
	cmd := exec.Command(name, args...)
	if len(env) > 0 {
		cmd.Env = append(cmd.Environ(), env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("mcp: start %s: %w", name, err)
	}

	t := &StdioTransport{
		cmd:     cmd,
		stdin:   stdin,
		stdout:  bufio.NewScanner(stdout),
		pending: make(map[int64]chan Response),
	}
	t.stdout.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	go t.readLoop()
	return t, nil
}

func (t *StdioTransport) readLoop() {
	for t.stdout.Scan() {
		var resp Response
		if err := json.Unmarshal(t.stdout.Bytes(), &resp); err != nil {
			continue // forgiving: skip lines that aren't a JSON-RPC response
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
	t.mu.Lock()
	t.readErr = t.stdout.Err()
	if t.readErr == nil {
		t.readErr = io.ErrClosedPipe
	}
	for id, ch := range t.pending {
		delete(t.pending, id)
		close(ch)
	}
	t.mu.Unlock()
}

func (t *StdioTransport) call(ctx context.Context, method string, params any) (Response, error) {
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
	t.pending[id] = ch
	t.mu.Unlock()

	if _, err := t.stdin.Write(append(body, '\n')); err != nil {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return Response{}, fmt.Errorf("mcp: write %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return Response{}, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return Response{}, fmt.Errorf("mcp: transport closed while awaiting %s: %w", method, t.readErr)
		}
		return resp, nil
	}
}

func (t *StdioTransport) Initialize(ctx context.Context) (InitializeResult, error) {
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

func (t *StdioTransport) ListTools(ctx context.Context) ([]Tool, error) {
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

func (t *StdioTransport) CallTool(ctx context.Context, name string, arguments map[string]any) (CallToolResult, error) {
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

func (t *StdioTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.stdin.Close()
	if t.cmd.Process != nil {
		t.cmd.Process.Kill()
	}
	return t.cmd.Wait()
}
