package control

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/orbitx-dev/orbitx/internal/checkpoint"
	"github.com/orbitx-dev/orbitx/internal/store"
	"github.com/orbitx-dev/orbitx/internal/term/mux"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	cp, err := checkpoint.NewEngine(s, t.TempDir())
	if err != nil {
		t.Fatalf("checkpoint.NewEngine: %v", err)
	}

	srv := NewServer(s, mux.New(), cp, nil, nil, nil, "", "", "")
	httpSrv := httptest.NewServer(srv.routes())
	t.Cleanup(httpSrv.Close)
	return srv, httpSrv
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHandleStatusReportsPaneCount(t *testing.T) {
	_, httpSrv := newTestServer(t)
	resp := doJSON(t, http.MethodGet, httpSrv.URL+"/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	if out["panes"].(float64) != 0 {
		t.Fatalf("panes = %v, want 0", out["panes"])
	}
}

func TestHandleSubmitExecutionWithoutSubmitIsUnavailable(t *testing.T) {
	_, httpSrv := newTestServer(t)
	resp := doJSON(t, http.MethodPost, httpSrv.URL+"/executions", SubmitExecutionRequest{Prompt: "hi"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestHandleSubmitExecutionDelegatesToSubmit(t *testing.T) {
	srv, httpSrv := newTestServer(t)
	var gotPrompt string
	srv.Submit = func(sessionID, conversationID, prompt string) (store.Execution, error) {
		gotPrompt = prompt
		return store.Execution{ID: "exec-1", Status: store.ExecutionRunning}, nil
	}
	resp := doJSON(t, http.MethodPost, httpSrv.URL+"/executions", SubmitExecutionRequest{Prompt: "fix the bug"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if gotPrompt != "fix the bug" {
		t.Fatalf("Submit prompt = %q", gotPrompt)
	}
}

func TestHandleGetExecutionNotFound(t *testing.T) {
	_, httpSrv := newTestServer(t)
	resp := doJSON(t, http.MethodGet, httpSrv.URL+"/executions/does-not-exist", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHandleCreateCheckpointAndRollback(t *testing.T) {
	_, httpSrv := newTestServer(t)

	workspace := t.TempDir()
	filePath := filepath.Join(workspace, "main.go")
	writeFile(t, filePath, "package main\n")

	createResp := doJSON(t, http.MethodPost, httpSrv.URL+"/checkpoints", CreateCheckpointRequest{
		SessionID: "session-1", UserMessage: "first pass", Workspace: workspace, Files: []string{"main.go"},
	})
	if createResp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", createResp.StatusCode)
	}
	var cp store.Checkpoint
	if err := json.NewDecoder(createResp.Body).Decode(&cp); err != nil {
		t.Fatalf("decode checkpoint: %v", err)
	}
	if cp.ID == "" {
		t.Fatal("checkpoint id is empty")
	}

	writeFile(t, filePath, "package main\n\nfunc main() {}\n")

	rollbackResp := doJSON(t, http.MethodPost, httpSrv.URL+"/checkpoints/"+cp.ID+"/rollback", nil)
	if rollbackResp.StatusCode != http.StatusOK {
		t.Fatalf("rollback status = %d", rollbackResp.StatusCode)
	}
}

func TestHandleReindexRequiresWorkspace(t *testing.T) {
	_, httpSrv := newTestServer(t)
	resp := doJSON(t, http.MethodPost, httpSrv.URL+"/reindex", ReindexRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
