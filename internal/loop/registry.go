package loop

import (
	"fmt"
	"sort"
	"sync"

	"coachd/internal/logging"
	"coachd/internal/provider"
)

// Registry holds the declared action vocabulary. It is populated during
// startup and treated as immutable while loops run.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]*Tool
	terminal string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool. It enforces unique names and at most one
// terminal action.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid action: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}
	if tool.Terminal && r.terminal != "" {
		return fmt.Errorf("%w: %s", ErrSecondTerminal, r.terminal)
	}

	r.tools[tool.Name] = tool
	if tool.Terminal {
		r.terminal = tool.Name
	}

	logging.Loop("registered action %s (terminal=%v)", tool.Name, tool.Terminal)
	return nil
}

// MustRegister registers a tool and panics on error. Use for static
// registration at startup.
func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("failed to register action %s: %v", tool.Name, err))
	}
}

// Get returns a tool by name, or nil if not found.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns all registered action names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered actions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Schemas returns the provider-facing declarations in name order, so the
// declaration block is byte-stable across turns.
func (r *Registry) Schemas() []provider.ActionSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	schemas := make([]provider.ActionSchema, 0, len(names))
	for _, name := range names {
		schemas = append(schemas, r.tools[name].ActionSchema())
	}
	return schemas
}
