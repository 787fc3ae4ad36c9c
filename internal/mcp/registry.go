package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/orbitx-dev/orbitx/internal/config"
)

// Client wraps one initialized server connection and the tools it exposed
// at the last (re)load.
type Client struct {
	Name      string
	Transport Transport
	Tools     []Tool
}

// Registry holds one Client set per workspace root (spec.md §4.12:
// "Registry is keyed by workspace root; init is idempotent; reload tears
// down and reinitializes"). Grounded on internal/tools.Registry's
// name-keyed map shape, generalized to a second key (workspace) since MCP
// servers are configured per-workspace rather than process-global.
type Registry struct {
	mu        sync.Mutex
	workspace map[string]map[string]*Client // workspace root -> server name -> client
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{workspace: make(map[string]map[string]*Client)}
}

// Init connects every server configured in servers for the given workspace
// root. Calling Init again for a root that's already initialized is a
// no-op — use Reload to tear down and reconnect.
func (r *Registry) Init(ctx context.Context, root string, servers map[string]config.MCPServer) error {
	r.mu.Lock()
	if _, ok := r.workspace[root]; ok {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	clients, err := connectAll(ctx, servers)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.workspace[root] = clients
	r.mu.Unlock()
	return nil
}

// Reload tears down every connection for root and reconnects from servers.
func (r *Registry) Reload(ctx context.Context, root string, servers map[string]config.MCPServer) error {
	r.mu.Lock()
	existing := r.workspace[root]
	delete(r.workspace, root)
	r.mu.Unlock()

	for _, c := range existing {
		c.Transport.Close()
	}

	return r.Init(ctx, root, servers)
}

// Close tears down every connection for root without reconnecting.
func (r *Registry) Close(root string) {
	r.mu.Lock()
	clients := r.workspace[root]
	delete(r.workspace, root)
	r.mu.Unlock()

	for _, c := range clients {
		c.Transport.Close()
	}
}

// Clients returns the connected servers for root, or an empty slice if root
// was never initialized.
func (r *Registry) Clients(root string) []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	byName := r.workspace[root]
	clients := make([]*Client, 0, len(byName))
	for _, c := range byName {
		clients = append(clients, c)
	}
	return clients
}

func connectAll(ctx context.Context, servers map[string]config.MCPServer) (map[string]*Client, error) {
	clients := make(map[string]*Client, len(servers))
	for name, cfg := range servers {
		transport, err := newTransport(ctx, cfg)
		if err != nil {
			closeAll(clients)
			return nil, fmt.Errorf("mcp: server %q: %w", name, err)
		}
		if _, err := transport.Initialize(ctx); err != nil {
			transport.Close()
			closeAll(clients)
			return nil, fmt.Errorf("mcp: server %q: initialize: %w", name, err)
		}
		tools, err := transport.ListTools(ctx)
		if err != nil {
			transport.Close()
			closeAll(clients)
			return nil, fmt.Errorf("mcp: server %q: list tools: %w", name, err)
		}
		clients[name] = &Client{Name: name, Transport: transport, Tools: tools}
	}
	return clients, nil
}

func closeAll(clients map[string]*Client) {
	for _, c := range clients {
		c.Transport.Close()
	}
}

func newTransport(ctx context.Context, cfg config.MCPServer) (Transport, error) {
	switch cfg.Type {
	case "stdio":
		env := make([]string, 0, len(cfg.Env))
		for k, v := range cfg.Env {
			env = append(env, k+"="+v)
		}
		return NewStdioTransport(cfg.Command, cfg.Args, env)
	case "sse":
		return NewSSETransport(ctx, cfg.URL, cfg.Headers)
	case "streamableHttp":
		return NewStreamableHTTPTransport(cfg.URL, cfg.Headers), nil
	default:
		return nil, fmt.Errorf("unknown MCP server type %q", cfg.Type)
	}
}
