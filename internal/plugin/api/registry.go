package api

import (
	"fmt"
	"slices"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// Module represents a Lua API module that can be injected into a state.
type Module interface {
	// Name returns the module name, which is also its Lua global.
	Name() string

	// Register installs the module into the Lua state.
	Register(L *lua.LState) error
}

// Registry manages API modules and their registration.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
}

// NewRegistry creates a new API registry.
func NewRegistry(modules ...Module) (*Registry, error) {
	r := &Registry{
		modules: make(map[string]Module),
	}
	for _, mod := range modules {
		if err := r.Register(mod); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a module to the registry.
func (r *Registry) Register(mod Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.modules[mod.Name()]; exists {
		return fmt.Errorf("module %q already registered", mod.Name())
	}

	r.modules[mod.Name()] = mod
	return nil
}

// Get returns a module by name.
func (r *Registry) Get(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mod, ok := r.modules[name]
	return mod, ok
}

// List returns all registered module names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// InjectAll registers every module into the Lua state in name order.
func (r *Registry) InjectAll(L *lua.LState) error {
	return r.Inject(L, r.List()...)
}

// Inject registers the named modules into the Lua state.
func (r *Registry) Inject(L *lua.LState, moduleNames ...string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range moduleNames {
		mod, ok := r.modules[name]
		if !ok {
			return fmt.Errorf("module %q not found", name)
		}
		if err := mod.Register(L); err != nil {
			return fmt.Errorf("failed to register module %q: %w", name, err)
		}
	}
	return nil
}
