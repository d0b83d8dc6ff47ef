package hook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"weak"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/hookbus/internal/event/dispatch"
	plua "github.com/dshills/hookbus/internal/plugin/lua"
)

// Errors returned by hook installation.
var (
	ErrNilTarget   = errors.New("hook target is nil")
	ErrNilHandler  = errors.New("hook handler is nil")
	ErrEmptyName   = errors.New("hook name is empty")
	ErrNotFunction = errors.New("hooked member is not a function")
)

// Handler runs after a hooked function or script.
type Handler = dispatch.Handler

// Scriptable is a native object whose lifecycle scripts accept post-hooks.
type Scriptable interface {
	// Object returns the Lua value that identifies the object.
	Object() *lua.LUserData

	// AddScriptHook runs fn after script each time it fires, whether or
	// not a script handler is set.
	AddScriptHook(script string, fn func(ctx context.Context, args []any)) error
}

// key identifies one hook site.
type key[T any] struct {
	target weak.Pointer[T]
	name   string
}

// Registry records installed hooks.
type Registry struct {
	mu        sync.Mutex
	functions map[key[lua.LTable]]struct{}
	scripts   map[key[lua.LUserData]]struct{}

	isolated dispatch.Strategy
	logger   *zap.Logger
}

// Option configures a Registry.
type Option func(*registryConfig)

type registryConfig struct {
	sink   dispatch.ErrorSink
	logger *zap.Logger
}

// WithErrorSink sets where failing hook handlers are reported.
// The default logs them.
func WithErrorSink(sink dispatch.ErrorSink) Option {
	return func(c *registryConfig) {
		c.sink = sink
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *registryConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

var (
	defaultRegistry *Registry
	defaultOnce     sync.Once
)

// Default returns the process-wide registry. It is created on first use
// and lives for the rest of the process.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates an independent registry. Most callers want Default;
// separate registries do not share dedup state.
func NewRegistry(opts ...Option) *Registry {
	config := registryConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&config)
	}
	if config.sink == nil {
		config.sink = dispatch.NewLogSink(config.logger)
	}

	return &Registry{
		functions: make(map[key[lua.LTable]]struct{}),
		scripts:   make(map[key[lua.LUserData]]struct{}),
		isolated:  dispatch.NewIsolated(dispatch.NewExecutor(), config.sink),
		logger:    config.logger,
	}
}

// HookFunction replaces target[member] with a function that calls the
// original and then runs h with (member, args...). The original's results
// are returned unchanged.
//
// installed is false, and nothing changes, when (target, member) is
// already hooked.
func (r *Registry) HookFunction(L *lua.LState, target *lua.LTable, member string, h Handler) (installed bool, err error) {
	if target == nil {
		return false, ErrNilTarget
	}
	if member == "" {
		return false, ErrEmptyName
	}
	if h == nil {
		return false, ErrNilHandler
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune()
	k := key[lua.LTable]{target: weak.Make(target), name: member}
	if _, ok := r.functions[k]; ok {
		return false, nil
	}

	orig, ok := target.RawGetString(member).(*lua.LFunction)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotFunction, member)
	}

	target.RawSetString(member, L.NewFunction(func(L *lua.LState) int {
		n := L.GetTop()
		L.Push(orig)
		for i := 1; i <= n; i++ {
			L.Push(L.Get(i))
		}
		L.Call(n, lua.MultRet)

		bridge := plua.NewBridge(L)
		args := make([]any, n)
		for i := 1; i <= n; i++ {
			args[i-1] = bridge.ToGoValue(L.Get(i))
		}
		r.run(plua.CallContext(L), h, member, args)

		return L.GetTop() - n
	}))

	r.functions[k] = struct{}{}
	r.logger.Debug("function hooked", zap.String("member", member))
	return true, nil
}

// HookLifecycleCallback runs h with (script, args...) after target's
// script fires.
//
// installed is false, and nothing changes, when (target, script) is
// already hooked.
func (r *Registry) HookLifecycleCallback(target Scriptable, script string, h Handler) (installed bool, err error) {
	if target == nil || target.Object() == nil {
		return false, ErrNilTarget
	}
	if script == "" {
		return false, ErrEmptyName
	}
	if h == nil {
		return false, ErrNilHandler
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune()
	k := key[lua.LUserData]{target: weak.Make(target.Object()), name: script}
	if _, ok := r.scripts[k]; ok {
		return false, nil
	}

	err = target.AddScriptHook(script, func(ctx context.Context, args []any) {
		r.run(ctx, h, script, args)
	})
	if err != nil {
		return false, err
	}

	r.scripts[k] = struct{}{}
	r.logger.Debug("lifecycle script hooked", zap.String("script", script))
	return true, nil
}

// IsFunctionHooked reports whether (target, member) carries a hook.
func (r *Registry) IsFunctionHooked(target *lua.LTable, member string) bool {
	if target == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.functions[key[lua.LTable]{target: weak.Make(target), name: member}]
	return ok
}

// IsScriptHooked reports whether (target, script) carries a hook.
func (r *Registry) IsScriptHooked(target Scriptable, script string) bool {
	if target == nil || target.Object() == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.scripts[key[lua.LUserData]{target: weak.Make(target.Object()), name: script}]
	return ok
}

// Len returns the number of live hook sites.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune()
	return len(r.functions) + len(r.scripts)
}

// run invokes h through the isolated strategy.
func (r *Registry) run(ctx context.Context, h Handler, name string, args []any) {
	_, _ = r.isolated.Invoke(ctx, h, name, args)
}

// prune forgets hook sites whose target was collected.
// Caller must hold r.mu.
func (r *Registry) prune() {
	for k := range r.functions {
		if k.target.Value() == nil {
			delete(r.functions, k)
		}
	}
	for k := range r.scripts {
		if k.target.Value() == nil {
			delete(r.scripts, k)
		}
	}
}
