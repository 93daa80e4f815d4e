package realtime

import (
	"context"
	"sync"
)

// ToolFunc handles a function call requested by the voice model. The returned
// value is JSON-encoded and sent back as the function call output.
type ToolFunc func(ctx context.Context, args map[string]any) (any, error)

// ToolDefinition advertises a function to the voice model in session.update
type ToolDefinition struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolRegistry maps function names to handlers
type ToolRegistry struct {
	mu    sync.RWMutex
	defs  []ToolDefinition
	funcs map[string]ToolFunc
}

// NewToolRegistry creates an empty registry
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{funcs: make(map[string]ToolFunc)}
}

// Register adds or replaces a handler. A definition with a description is
// advertised to the model; one registered with only a name is callable but
// not advertised.
func (r *ToolRegistry) Register(def ToolDefinition, fn ToolFunc) {
	if def.Type == "" {
		def.Type = "function"
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.funcs[def.Name]; exists {
		for i := range r.defs {
			if r.defs[i].Name == def.Name {
				r.defs = append(r.defs[:i], r.defs[i+1:]...)
				break
			}
		}
	}
	r.funcs[def.Name] = fn
	if def.Description != "" {
		r.defs = append(r.defs, def)
	}
}

// Lookup returns the handler registered under name
func (r *ToolRegistry) Lookup(name string) (ToolFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Definitions returns the advertised tools in registration order
func (r *ToolRegistry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDefinition, len(r.defs))
	copy(out, r.defs)
	return out
}
