package tools

import (
	"sort"
	"strings"
	"sync"

	"github.com/quillagent/quill/config"
	"github.com/quillagent/quill/errors"
)

// ServerTool is implemented by tools bridged in from an external server, so
// toolsets can reference them as "server:tool" or "server.*" in addition to
// their plain registered names.
type ServerTool interface {
	Tool
	Server() string
}

// Registry maps tool names to implementations. Registration happens at
// startup; lookups are read-mostly and safe for concurrent use by multiple
// orchestrator instances.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. A duplicate name is a programming error and fails.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return errors.New("tool '%s' is already registered", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// Get returns the registered tool instance. Repeated calls with no intervening
// Register return the same instance.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool in stable name order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name])
	}
	return out
}

// ActiveTools resolves a toolset into tool instances, preserving the
// toolset's declared order. A nil toolset means every registered tool.
// Entries of the form "server:tool" resolve a single bridged tool from the
// named server; "server.*" expands to all of that server's tools in name
// order.
func (r *Registry) ActiveTools(ts *config.Toolset) ([]Tool, error) {
	if ts == nil {
		return r.List(), nil
	}
	var active []Tool
	for _, name := range ts.Tools {
		if server, tool, ok := splitServerRef(name); ok {
			matched := r.serverTools(server, tool)
			if len(matched) == 0 {
				return nil, errors.New("no tool matching '%s' from toolset '%s' is registered", name, ts.Name)
			}
			active = append(active, matched...)
			continue
		}
		t, ok := r.Get(name)
		if !ok {
			return nil, errors.New("tool '%s' from toolset '%s' is not registered", name, ts.Name)
		}
		active = append(active, t)
	}
	return active, nil
}

// splitServerRef recognizes the qualified toolset forms "server:tool" and
// "server.*". Plain tool names return ok=false.
func splitServerRef(name string) (server, tool string, ok bool) {
	if i := strings.Index(name, ":"); i > 0 && i < len(name)-1 {
		return name[:i], name[i+1:], true
	}
	if s, found := strings.CutSuffix(name, ".*"); found && s != "" {
		return s, "*", true
	}
	return "", "", false
}

// serverTools returns the registered tools owned by the named server, in
// stable name order. tool "*" matches them all.
func (r *Registry) serverTools(server, tool string) []Tool {
	var out []Tool
	for _, t := range r.List() {
		st, ok := t.(ServerTool)
		if !ok || st.Server() != server {
			continue
		}
		if tool == "*" || t.Name() == tool {
			out = append(out, t)
		}
	}
	return out
}
