// Package control is OrbitX's local control surface: a unix-socket HTTP API
// fronting the daemon's subsystems (Mux, ReAct executor, Checkpoint engine,
// Vector index), the orbitctl CLI's transport, and the Go analogue of the
// Tauri IPC command layer spec.md §1 excludes from this spec except for its
// "event payload shapes" (those live in internal/agentevents). Grounded on
// the teacher's internal/transport.Server (net.Listen("unix", ...) +
// http.ServeMux + graceful shutdown), generalized from task-runner routes
// to OrbitX's pane/execution/checkpoint/search domain.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orbitx-dev/orbitx/internal/agentevents"
	"github.com/orbitx-dev/orbitx/internal/checkpoint"
	"github.com/orbitx-dev/orbitx/internal/metrics"
	"github.com/orbitx-dev/orbitx/internal/store"
	"github.com/orbitx-dev/orbitx/internal/term"
	"github.com/orbitx-dev/orbitx/internal/term/mux"
	"github.com/orbitx-dev/orbitx/internal/vectorindex"
)

// Server is the daemon side of the control surface.
type Server struct {
	store      *store.Store
	mux        *mux.Mux
	checkpoint *checkpoint.Engine
	vectors    *vectorindex.Service
	events     *agentevents.Hub
	metrics    *metrics.Metrics
	socketPath string
	shell      string
	shellRCDir string

	// Submit enqueues a user prompt as a new ReAct execution; set by the
	// daemon after the react.Executor and its goroutine pool are wired up,
	// since the executor itself isn't a control.Server concern.
	Submit func(sessionID, conversationID, prompt string) (store.Execution, error)

	// GrantPermission/DenyPermission answer a pending "ask"-bucket tool
	// permission (spec.md §6); set by the daemon alongside Submit.
	GrantPermission func(tool string, params map[string]any, decision string) error
	DenyPermission  func(tool string, params map[string]any, decision string) error
}

// shellRCDir is the directory DefaultSpawn caches shell-integration rc
// snippets in (config.Config.ShellRCDir()); every pane this Server creates
// is spawned with that shell's snippet injected, so OSC 133/7/1337
// command-lifecycle and cwd tracking (internal/shellintegration) fires for
// real panes, not just in tests.
func NewServer(s *store.Store, m *mux.Mux, cp *checkpoint.Engine, vec *vectorindex.Service, events *agentevents.Hub, mx *metrics.Metrics, socketPath, shell, shellRCDir string) *Server {
	return &Server{store: s, mux: m, checkpoint: cp, vectors: vec, events: events, metrics: mx, socketPath: socketPath, shell: shell, shellRCDir: shellRCDir}
}

// ListenAndServe serves the control API on a unix socket until ctx is
// cancelled, per spec.md §0's "unix socket + loopback HTTP" control surface.
func (s *Server) ListenAndServe(ctx context.Context) error {
	os.Remove(s.socketPath)
	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen unix %s: %w", s.socketPath, err)
	}

	httpSrv := &http.Server{Handler: s.routes()}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutCtx)
		os.Remove(s.socketPath)
		return nil
	case err := <-errCh:
		os.Remove(s.socketPath)
		return err
	}
}

func (s *Server) routes() http.Handler {
	m := http.NewServeMux()
	m.HandleFunc("GET /status", s.handleStatus)
	m.HandleFunc("POST /panes", s.handleCreatePane)
	m.HandleFunc("GET /panes", s.handleListPanes)
	m.HandleFunc("POST /panes/{id}/write", s.handleWritePane)
	m.HandleFunc("POST /panes/{id}/resize", s.handleResizePane)
	m.HandleFunc("DELETE /panes/{id}", s.handleRemovePane)
	m.HandleFunc("POST /executions", s.handleSubmitExecution)
	m.HandleFunc("GET /executions/{id}", s.handleGetExecution)
	m.HandleFunc("POST /checkpoints", s.handleCreateCheckpoint)
	m.HandleFunc("POST /checkpoints/{id}/rollback", s.handleRollback)
	m.HandleFunc("GET /checkpoints/{id}/diff", s.handleDiffWithWorkspace)
	m.HandleFunc("POST /search", s.handleSearch)
	m.HandleFunc("POST /reindex", s.handleReindex)
	m.HandleFunc("POST /permissions", s.handleSetPermission)
	m.Handle("/events", s.events)
	if s.metrics != nil {
		m.Handle("/metrics", promhttp.Handler())
	}
	return m
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"panes": s.mux.PaneCount(),
	})
}

type CreatePaneRequest struct {
	Rows uint16 `json:"rows"`
	Cols uint16 `json:"cols"`
	Cwd  string `json:"cwd"`
}

func (s *Server) handleCreatePane(w http.ResponseWriter, r *http.Request) {
	var req CreatePaneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Rows == 0 {
		req.Rows = 24
	}
	if req.Cols == 0 {
		req.Cols = 80
	}
	id, err := s.mux.CreatePane(mux.DefaultSpawn(s.shell, s.shellRCDir, nil), nil, req.Cwd, term.PtySize{Rows: req.Rows, Cols: req.Cols})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if s.metrics != nil {
		s.metrics.SetPaneCount(s.mux.PaneCount())
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (s *Server) handleListPanes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mux.ListPanes())
}

func (s *Server) paneID(r *http.Request) (term.PaneID, error) {
	var id uint32
	_, err := fmt.Sscanf(r.PathValue("id"), "%d", &id)
	return term.PaneID(id), err
}

func (s *Server) handleWritePane(w http.ResponseWriter, r *http.Request) {
	id, err := s.paneID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req struct {
		Data string `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.mux.WriteToPane(id, []byte(req.Data)); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResizePane(w http.ResponseWriter, r *http.Request) {
	id, err := s.paneID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req struct {
		Rows, Cols uint16
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.mux.ResizePane(id, term.PtySize{Rows: req.Rows, Cols: req.Cols}); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemovePane(w http.ResponseWriter, r *http.Request) {
	id, err := s.paneID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.mux.RemovePane(id); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if s.metrics != nil {
		s.metrics.SetPaneCount(s.mux.PaneCount())
	}
	w.WriteHeader(http.StatusNoContent)
}

type SubmitExecutionRequest struct {
	SessionID      string `json:"session_id"`
	ConversationID string `json:"conversation_id"`
	Prompt         string `json:"prompt"`
}

func (s *Server) handleSubmitExecution(w http.ResponseWriter, r *http.Request) {
	if s.Submit == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("agent executor not wired"))
		return
	}
	var req SubmitExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	exec, err := s.Submit(req.SessionID, req.ConversationID, req.Prompt)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, exec)
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	exec, ok, err := s.store.Executions().FindByID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("execution %s not found", r.PathValue("id")))
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

type CreateCheckpointRequest struct {
	SessionID   string   `json:"session_id"`
	UserMessage string   `json:"user_message"`
	Workspace   string   `json:"workspace"`
	Files       []string `json:"files"`
}

func (s *Server) handleCreateCheckpoint(w http.ResponseWriter, r *http.Request) {
	var req CreateCheckpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cp, err := s.checkpoint.CreateCheckpoint(req.SessionID, req.UserMessage, req.Workspace, req.Files)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, cp)
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	cp, err := s.checkpoint.RollbackTo(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

func (s *Server) handleDiffWithWorkspace(w http.ResponseWriter, r *http.Request) {
	diffs, err := s.checkpoint.DiffWithWorkspace(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, diffs)
}

type SearchRequest struct {
	Query     string  `json:"query"`
	TopK      int     `json:"top_k"`
	Threshold float32 `json:"threshold"`
}

// ReindexRequest re-embeds the given Files (paths relative to Workspace).
// An empty Files list walks Workspace and reindexes every regular file,
// skipping dotdirs (.git, .orbitx) the way internal/tools' list_files skips
// nothing but a reindex sweep should.
type ReindexRequest struct {
	Workspace string   `json:"workspace"`
	Files     []string `json:"files,omitempty"`
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	var req ReindexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Workspace == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("workspace is required"))
		return
	}

	files := req.Files
	if len(files) == 0 {
		var err error
		files, err = walkWorkspaceFiles(req.Workspace)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}

	n, err := s.vectors.ReindexWorkspace(r.Context(), req.Workspace, files)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"indexed": n})
}

// walkWorkspaceFiles lists every regular file under root, relative to root,
// skipping dotdirs like .git and .orbitx so a reindex sweep doesn't try to
// chunk the daemon's own state alongside the workspace's source.
func walkWorkspaceFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	return files, err
}

type SetPermissionRequest struct {
	Tool     string         `json:"tool"`
	Params   map[string]any `json:"params"`
	Decision string         `json:"decision"` // "allow_once" | "always_allow" | "deny" | "always_deny"
}

func (s *Server) handleSetPermission(w http.ResponseWriter, r *http.Request) {
	var req SetPermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var err error
	switch req.Decision {
	case "allow_once", "always_allow":
		if s.GrantPermission == nil {
			writeError(w, http.StatusServiceUnavailable, fmt.Errorf("permission engine not wired"))
			return
		}
		err = s.GrantPermission(req.Tool, req.Params, req.Decision)
	case "deny", "always_deny":
		if s.DenyPermission == nil {
			writeError(w, http.StatusServiceUnavailable, fmt.Errorf("permission engine not wired"))
			return
		}
		err = s.DenyPermission(req.Tool, req.Params, req.Decision)
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown decision %q", req.Decision))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.TopK == 0 {
		req.TopK = 10
	}
	hits, err := s.vectors.Search(req.Query, req.TopK, req.Threshold)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, hits)
}
