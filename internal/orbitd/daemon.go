// Package orbitd wires OrbitX's subsystems (Mux, Repository, ReAct executor,
// Checkpoint engine, Vector index, MCP registry, Prompt orchestrator) into
// one running daemon process behind the internal/control unix-socket
// surface — the Go analogue of the Tauri backend process spec.md §1
// describes and SPEC_FULL.md §0 names as cmd/orbitd's job. Grounded on the
// teacher's internal/daemon.Run (store.Open, background goroutines for the
// long-running engine and the transport server, signal-driven graceful
// shutdown with a grace period), generalized from the task-timeline engine
// to OrbitX's subsystem set.
package orbitd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/orbitx-dev/orbitx/internal/agent"
	"github.com/orbitx-dev/orbitx/internal/agentctx"
	"github.com/orbitx-dev/orbitx/internal/agentevents"
	"github.com/orbitx-dev/orbitx/internal/checkpoint"
	"github.com/orbitx-dev/orbitx/internal/config"
	"github.com/orbitx-dev/orbitx/internal/control"
	"github.com/orbitx-dev/orbitx/internal/embedding"
	"github.com/orbitx-dev/orbitx/internal/interfaces"
	"github.com/orbitx-dev/orbitx/internal/logger"
	"github.com/orbitx-dev/orbitx/internal/mcp"
	"github.com/orbitx-dev/orbitx/internal/metrics"
	"github.com/orbitx-dev/orbitx/internal/prompt"
	"github.com/orbitx-dev/orbitx/internal/react"
	"github.com/orbitx-dev/orbitx/internal/store"
	"github.com/orbitx-dev/orbitx/internal/store/snapshot"
	"github.com/orbitx-dev/orbitx/internal/term/mux"
	"github.com/orbitx-dev/orbitx/internal/tools"
	"github.com/orbitx-dev/orbitx/internal/vectorindex"
	"github.com/orbitx-dev/orbitx/internal/watch"
)

// Daemon owns every long-lived subsystem for one orbitd process.
type Daemon struct {
	cfg         *config.Config
	settings    *config.Settings
	store       *store.Store
	mux         *mux.Mux
	checkpoint  *checkpoint.Engine
	vectors     *vectorindex.Service
	registry    *tools.Registry
	dispatcher  *tools.Dispatcher
	mcpClients  *mcp.Registry
	events      *agentevents.Hub
	metrics     *metrics.Metrics
	executor    *react.Executor
	builder     *prompt.Builder
	agentDef    prompt.AgentDefinition
	workspace   string
	permEngine  *agent.PermissionEngine
	permPath    string
	watcher     *watch.Watcher

	mu                sync.RWMutex
	activeConversation string
}

// activeConversationID is the watch.Watcher's conversationID callback: the
// most recently submitted conversation, so an externally-observed edit
// lands against whichever conversation is actually in flight rather than a
// conversation fixed at daemon startup.
func (d *Daemon) activeConversationID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.activeConversation
}

func (d *Daemon) setActiveConversationID(id string) {
	d.mu.Lock()
	d.activeConversation = id
	d.mu.Unlock()
}

// New assembles every subsystem but does not start serving. Workspace is
// the project root whose CLAUDE.md/AGENTS.md/etc. and MCP servers apply.
func New(cfg *config.Config, settings *config.Settings, workspace string) (*Daemon, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	s, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	m := mux.New()

	cpEngine, err := checkpoint.NewEngine(s, cfg.BlobDir())
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("checkpoint engine: %w", err)
	}

	embedder, err := embedding.NewFromProvider(firstNonEmpty(cfg.EmbedProvider, "auto"), cfg.EmbedModel, cfg.EmbedBaseURL)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	files, err := vectorindex.NewFileStore(cfg.VectorDir())
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("vector file store: %w", err)
	}
	chunker := vectorindex.NewChunker(vectorindex.NewExtractor(".go"), 4.0)
	embedClient := vectorindex.NewEmbedClient(embedder)
	var index vectorindex.Index
	switch cfg.VectorBackend {
	case "qdrant":
		index = vectorindex.NewQdrantIndex(cfg.QdrantURL, firstNonEmpty(cfg.QdrantCollection, "orbitx"), embedder.Dims())
	default:
		index = vectorindex.NewMemoryIndex(embedder.Dims())
	}
	vecService := vectorindex.NewService(s, chunker, embedClient, index, files)

	registry, err := tools.NewBuiltinRegistry()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("tool registry: %w", err)
	}
	dispatcher := tools.NewDispatcher(registry)

	permEngine := agent.NewPermissionEngine(interfaces.NewOSFileSystem(), logger.Log)
	permissionsPath := filepath.Join(cfg.Dir, "permissions.json")
	if err := permEngine.LoadFromFile(permissionsPath); err != nil {
		logger.Warn("orbitd: load permissions failed", "path", permissionsPath, "err", err)
	}
	dispatcher.Checker = newPermissionChecker(settings.Permissions, permEngine)
	dispatcher.Audit = newAuditRecorder(s)

	mcpRegistry := mcp.NewRegistry()
	if err := mcpRegistry.Init(context.Background(), workspace, settings.MCPServers); err != nil {
		logger.Warn("orbitd: mcp init failed", "err", err)
	} else {
		for _, client := range mcpRegistry.Clients(workspace) {
			if err := mcp.RegisterTools(registry, client); err != nil {
				logger.Warn("orbitd: register mcp tools failed", "server", client.Name, "err", err)
			}
		}
	}

	tracker := agentctx.NewTracker(s.FileContext())
	ctxBuilder := agentctx.NewContextBuilder(s.Messages(), s.MessageBlocks(), tracker, nil, agentctx.DefaultBuilderConfig())

	streamer, err := newStreamer(cfg)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("llm streamer: %w", err)
	}

	// Registered on the default registry, which control.Server serves at /metrics.
	mx := metrics.New(prometheus.DefaultRegisterer)

	execCfg := react.DefaultConfig()
	execCfg.SnapshotDir = cfg.SnapshotDir()
	if err := os.MkdirAll(execCfg.SnapshotDir, 0o755); err != nil {
		s.Close()
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	executor := react.NewExecutor(s, dispatcher, registry, ctxBuilder, streamer, execCfg)

	promptBuilder := prompt.NewBuilder(workspace, registry, settings).WithSkillsDir(cfg.SkillsDir())

	agentDef := loadAgentDefinition(cfg)

	d := &Daemon{
		cfg:        cfg,
		settings:   settings,
		store:      s,
		mux:        m,
		checkpoint: cpEngine,
		vectors:    vecService,
		registry:   registry,
		dispatcher: dispatcher,
		mcpClients: mcpRegistry,
		events:     agentevents.NewHub(),
		metrics:    mx,
		executor:   executor,
		builder:    promptBuilder,
		agentDef:   agentDef,
		workspace:  workspace,
		permEngine: permEngine,
		permPath:   permissionsPath,
	}

	watcher, err := watch.New(workspace, d.activeConversationID, tracker)
	if err != nil {
		logger.Warn("orbitd: file watcher init failed, external edits won't mark files Stale", "workspace", workspace, "err", err)
	} else {
		d.watcher = watcher
	}

	return d, nil
}

// GrantPermission records an approval for a tool call previously denied
// because it fell into the "ask" bucket (spec.md §6), persisting it to
// permPath so the decision survives a daemon restart.
func (d *Daemon) GrantPermission(tool string, params map[string]any, decision agent.PermissionDecision) error {
	d.permEngine.GrantPermission(tool, "execute", params, decision)
	return d.permEngine.SaveToFile(d.permPath)
}

// DenyPermission records a denial the same way GrantPermission records an
// approval.
func (d *Daemon) DenyPermission(tool string, params map[string]any, decision agent.PermissionDecision) error {
	d.permEngine.DenyPermission(tool, "execute", params, decision)
	return d.permEngine.SaveToFile(d.permPath)
}

// defaultAgentDefinition is OrbitX's built-in coding agent, used whenever
// cfg.AgentsDir() has no "orbitx-coder.md" override.
var defaultAgentDefinition = prompt.AgentDefinition{
	Name:        "orbitx-coder",
	Description: "OrbitX's built-in coding agent",
	Mode:        prompt.ModePrimary,
	Body:        "You are OrbitX, a terminal-native coding agent. Use the available tools to read, search, and edit the workspace on the user's behalf.",
}

// loadAgentDefinition lets a user override the built-in agent's body/mode
// by dropping an spec.md §6 agent-config markdown file at
// cfg.AgentsDir()/orbitx-coder.md; anything else (missing directory,
// missing file, parse failure) falls back to defaultAgentDefinition rather
// than failing daemon startup.
func loadAgentDefinition(cfg *config.Config) prompt.AgentDefinition {
	path := filepath.Join(cfg.AgentsDir(), "orbitx-coder.md")
	def, err := prompt.LoadAgentDefinition(path)
	if err != nil {
		return defaultAgentDefinition
	}
	return def
}

// newStreamer picks the ReAct executor's LLM backend. With an API key set it
// talks to Anthropic directly and gets tool-call content blocks the executor
// can dispatch itself; otherwise it shells out to one of the teacher's
// subprocess CLI backends (all satisfying agent.Agent), which manage their
// own tool loop and only ever report back a finished turn of text.
func newStreamer(cfg *config.Config) (react.LLMStreamer, error) {
	if cfg.APIKey != "" {
		return react.NewAnthropicStreamer(cfg.APIKey, firstNonEmpty(cfg.Model, "claude-sonnet-4-5"), 8192), nil
	}
	var a agent.Agent
	switch cfg.Backend {
	case "codex":
		a = agent.NewCodex(0)
	case "cursor":
		a = agent.NewCursor(0)
	case "gemini":
		a = agent.NewGemini(cfg.Model, 0)
	case "ollama":
		a = agent.NewOllama(firstNonEmpty(cfg.Model, "qwen2.5-coder"), 0)
	default:
		a = agent.NewClaude(0)
	}
	return react.NewClaudeCLIStreamer(a, nil), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// submit creates (or reuses) a conversation/session and runs one ReAct
// execution to completion in the background, forwarding progress as
// agentevents.Events. Returns the execution row created at the start of
// the run — its Status reflects "Running" until the background goroutine
// finishes and updates the row via the Repository layer.
func (d *Daemon) submit(sessionID, conversationID, promptText string) (store.Execution, error) {
	now := time.Now().UTC()
	resuming := sessionID != ""
	if conversationID == "" {
		conversationID = uuid.NewString()
		if err := d.store.Conversations().Save(store.Conversation{
			ID: conversationID, Title: promptText, WorkspacePath: d.workspace, CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			return store.Execution{}, fmt.Errorf("create conversation: %w", err)
		}
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
		if err := d.store.Sessions().Save(store.Session{ID: sessionID, ConversationID: conversationID, CreatedAt: now}); err != nil {
			return store.Execution{}, fmt.Errorf("create session: %w", err)
		}
	}
	userMsgID := uuid.NewString()
	seq, err := d.store.Messages().NextSeq(sessionID)
	if err != nil {
		return store.Execution{}, fmt.Errorf("persist user message: %w", err)
	}
	if err := d.store.Messages().Save(store.Message{
		ID: userMsgID, SessionID: sessionID, Role: store.RoleUser, Seq: seq,
		Status: store.MessageCompleted, CreatedAt: now,
	}); err != nil {
		return store.Execution{}, fmt.Errorf("persist user message: %w", err)
	}
	if err := d.store.MessageBlocks().Save(store.MessageBlock{
		ID: uuid.NewString(), MessageID: userMsgID, Kind: store.BlockUserText, Content: promptText,
	}); err != nil {
		return store.Execution{}, fmt.Errorf("persist user message: %w", err)
	}

	if resuming {
		if state, err := snapshot.Read(filepath.Join(d.cfg.SnapshotDir(), sessionID+".snapshot")); err == nil {
			logger.Log.Info("orbitd: resuming session from snapshot", "session_id", sessionID, "iteration", state.IterationCount, "recently_modified", len(state.RecentlyModified))
		}
	}
	d.setActiveConversationID(conversationID)

	systemPrompt, err := d.builder.Build(d.agentDef, now)
	if err != nil {
		return store.Execution{}, fmt.Errorf("build system prompt: %w", err)
	}

	executionID := uuid.NewString()
	placeholder := store.Execution{ID: executionID, SessionID: sessionID, Status: store.ExecutionRunning, SystemPrompt: systemPrompt, CreatedAt: now, UpdatedAt: now}

	d.events.Publish(agentevents.TaskCreated(executionID, sessionID))

	go func() {
		cancelled := func() bool { return false }
		progress := func(ev react.ProgressEvent) {
			d.events.Publish(agentevents.BlockAppended(ev.ExecutionID, "", "", ev.Delta))
		}
		exec, err := d.executor.Run(context.Background(), sessionID, conversationID, systemPrompt, cancelled, progress)
		if err != nil {
			d.events.Publish(agentevents.TaskError(executionID, err.Error()))
			return
		}
		d.metrics.AddCost(sessionID, exec.CostUSD)
		switch exec.Status {
		case store.ExecutionCompleted:
			d.events.Publish(agentevents.TaskCompleted(executionID))
		case store.ExecutionCancelled:
			d.events.Publish(agentevents.TaskCancelled(executionID))
		case store.ExecutionError:
			d.events.Publish(agentevents.TaskError(executionID, exec.ErrorReason))
		}
	}()

	return placeholder, nil
}

// Run starts the control-surface HTTP server and blocks until the process
// receives SIGINT/SIGTERM or ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	defer d.store.Close()
	if d.watcher != nil {
		defer d.watcher.Close()
	}

	srv := control.NewServer(d.store, d.mux, d.checkpoint, d.vectors, d.events, d.metrics, d.cfg.SocketPath(), os.Getenv("SHELL"), d.cfg.ShellRCDir())
	srv.Submit = d.submit
	srv.GrantPermission = func(tool string, params map[string]any, decision string) error {
		return d.GrantPermission(tool, params, permissionDecision(decision))
	}
	srv.DenyPermission = func(tool string, params map[string]any, decision string) error {
		return d.DenyPermission(tool, params, permissionDecision(decision))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("orbitd: control surface listening", "socket", d.cfg.SocketPath())
		errCh <- srv.ListenAndServe(ctx)
	}()

	logger.Info("orbitd: started", "dir", d.cfg.Dir, "workspace", d.workspace)

	select {
	case sig := <-sigCh:
		logger.Info("orbitd: received signal, shutting down", "signal", sig.String())
		cancel()
		time.Sleep(time.Second)
	case err := <-errCh:
		if err != nil {
			cancel()
			return fmt.Errorf("control surface: %w", err)
		}
	}
	return nil
}
