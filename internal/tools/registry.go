package tools

import "fmt"

// Registry holds every tool Definition available to one agent session,
// keyed by name. It's the spec.md §4.8 "tool registry" half of component
// J; Dispatcher (dispatch.go) is the "parallel dispatcher" half.
type Registry struct {
	defs map[string]*Definition
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register adds or replaces a tool Definition.
func (r *Registry) Register(def *Definition) {
	r.defs[def.Name] = def
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (*Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// List returns every registered Definition, in no particular order.
func (r *Registry) List() []*Definition {
	out := make([]*Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	return out
}

// Unregister removes a tool by name (used when an MCP server reloads and
// its previously-exposed tools need to disappear — internal/mcp, component N).
func (r *Registry) Unregister(name string) {
	delete(r.defs, name)
}

func (r *Registry) mustGet(name string) (*Definition, error) {
	d, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("tools.Registry: unknown tool %q", name)
	}
	return d, nil
}
