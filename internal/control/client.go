package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
)

// Client is orbitctl's transport to a running orbitd over its unix socket,
// grounded on the teacher's internal/transport.Client (one http.Client with
// a unix-socket DialContext, one request-one-response per call, no
// persistent connection state to manage).
type Client struct {
	http       *http.Client
	socketPath string
}

func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, "http://orbitd"+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s: %s (status %d)", method, path, e.Error, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodGet, "/status", nil, &out)
	return out, err
}

func (c *Client) CreatePane(ctx context.Context, rows, cols uint16, cwd string) (uint32, error) {
	var out struct {
		ID uint32 `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/panes", CreatePaneRequest{Rows: rows, Cols: cols, Cwd: cwd}, &out)
	return out.ID, err
}

func (c *Client) ListPanes(ctx context.Context) ([]uint32, error) {
	var out []uint32
	err := c.do(ctx, http.MethodGet, "/panes", nil, &out)
	return out, err
}

func (c *Client) CreateCheckpoint(ctx context.Context, req CreateCheckpointRequest) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodPost, "/checkpoints", req, &out)
	return out, err
}

func (c *Client) Rollback(ctx context.Context, id string) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodPost, "/checkpoints/"+id+"/rollback", nil, &out)
	return out, err
}

func (c *Client) Search(ctx context.Context, query string, topK int, threshold float32) (any, error) {
	var out any
	err := c.do(ctx, http.MethodPost, "/search", SearchRequest{Query: query, TopK: topK, Threshold: threshold}, &out)
	return out, err
}

func (c *Client) Reindex(ctx context.Context, workspace string, files []string) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodPost, "/reindex", ReindexRequest{Workspace: workspace, Files: files}, &out)
	return out, err
}

func (c *Client) SubmitExecution(ctx context.Context, sessionID, conversationID, prompt string) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodPost, "/executions", SubmitExecutionRequest{SessionID: sessionID, ConversationID: conversationID, Prompt: prompt}, &out)
	return out, err
}

func (c *Client) SetPermission(ctx context.Context, tool string, params map[string]any, decision string) error {
	return c.do(ctx, http.MethodPost, "/permissions", SetPermissionRequest{Tool: tool, Params: params, Decision: decision}, nil)
}
