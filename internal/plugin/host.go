package plugin

import (
	"context"
	"fmt"
	"slices"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dshills/hookbus/internal/event"
	"github.com/dshills/hookbus/internal/event/source"
	"github.com/dshills/hookbus/internal/plugin/api"
	plua "github.com/dshills/hookbus/internal/plugin/lua"
)

// Host is a Lua scripting environment that produces native events.
//
// Scripts create frames, register frames for events and fire events with
// host.fire. A bus constructed with the host as its source receives the
// events it has handlers for; frames receive the events they registered
// through their OnEvent script.
type Host struct {
	state  *plua.State
	logger *zap.Logger
	strict bool

	modules  []api.Module
	registry *api.Registry

	mu         sync.Mutex
	declared   map[string]bool
	subscribed map[string]bool
	target     source.Target
	frames     []*Frame
	named      map[string]*Frame
	listeners  map[string][]*Frame
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithLogger sets the logger used by the host and its Lua print.
func WithLogger(logger *zap.Logger) HostOption {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithEvents declares the native events the host produces.
func WithEvents(names ...string) HostOption {
	return func(h *Host) {
		for _, name := range names {
			h.declared[name] = true
		}
	}
}

// WithStrict makes the host refuse events it has not declared, both as
// a bus source and from host.fire.
func WithStrict(strict bool) HostOption {
	return func(h *Host) {
		h.strict = strict
	}
}

// WithModules adds Lua API modules to inject into the state.
func WithModules(modules ...api.Module) HostOption {
	return func(h *Host) {
		h.modules = append(h.modules, modules...)
	}
}

// NewHost creates a host with a fresh Lua state.
func NewHost(opts ...HostOption) (*Host, error) {
	h := &Host{
		logger:     zap.NewNop(),
		declared:   make(map[string]bool),
		subscribed: make(map[string]bool),
		named:      make(map[string]*Frame),
		listeners:  make(map[string][]*Frame),
	}
	for _, opt := range opts {
		opt(h)
	}

	state, err := plua.NewState(plua.WithLogger(h.logger))
	if err != nil {
		return nil, fmt.Errorf("create lua state: %w", err)
	}
	h.state = state

	registry, err := api.NewRegistry(append([]api.Module{&hostModule{host: h}}, h.modules...)...)
	if err != nil {
		state.Close()
		return nil, err
	}

	L := state.LuaState()
	registerFrameType(L, h)
	if err := registry.InjectAll(L); err != nil {
		state.Close()
		return nil, err
	}

	h.registry = registry
	h.logger.Debug("script host created",
		zap.Strings("modules", registry.List()),
		zap.Bool("strict", h.strict))
	return h, nil
}

// Install injects additional API modules into the running state. It is
// how modules that depend on a bus built over this host are added.
func (h *Host) Install(modules ...api.Module) error {
	L := h.state.LuaState()
	for _, mod := range modules {
		if err := h.registry.Register(mod); err != nil {
			return err
		}
		if err := h.registry.Inject(L, mod.Name()); err != nil {
			return err
		}
	}
	return nil
}

// State returns the host's Lua state.
func (h *Host) State() *plua.State {
	return h.state
}

// RunFile executes a script file.
func (h *Host) RunFile(path string) error {
	return h.state.DoFile(path)
}

// RunString executes a chunk of Lua source.
func (h *Host) RunString(code string) error {
	return h.state.DoString(code)
}

// Close releases the Lua state.
func (h *Host) Close() error {
	return h.state.Close()
}

// Declare adds native events the host produces.
func (h *Host) Declare(names ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, name := range names {
		if event.ValidateEvent(name) == nil {
			h.declared[name] = true
		}
	}
}

// Events returns the declared events, sorted.
func (h *Host) Events() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	names := make([]string, 0, len(h.declared))
	for name := range h.declared {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// provides reports whether the host produces name. Caller must hold h.mu.
func (h *Host) provides(name string) bool {
	return !h.strict || h.declared[name]
}

// Subscribe implements source.Source.
func (h *Host) Subscribe(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.provides(name) {
		return fmt.Errorf("%w: %w: %s", ErrUndeclaredEvent, source.ErrUnknownEvent, name)
	}
	h.subscribed[name] = true
	return nil
}

// Unsubscribe implements source.Source.
func (h *Host) Unsubscribe(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.subscribed, name)
	return nil
}

// Attach implements source.Attacher.
func (h *Host) Attach(target source.Target) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.target = target
}

// Subscribed reports whether the attached bus is bound to name.
func (h *Host) Subscribed(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subscribed[name]
}

// Fire delivers a native event: first to frames registered for it, in
// registration order, then to the attached bus if it is bound to name.
// Frame script errors and bus errors are combined.
func (h *Host) Fire(ctx context.Context, name string, args ...any) error {
	if err := event.ValidateEvent(name); err != nil {
		return err
	}

	h.mu.Lock()
	if !h.provides(name) {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUndeclaredEvent, name)
	}
	listeners := slices.Clone(h.listeners[name])
	target := h.target
	bound := h.subscribed[name]
	h.mu.Unlock()

	var errs error
	for _, f := range listeners {
		errs = multierr.Append(errs, f.fireEvent(ctx, name, args))
	}
	if target != nil && bound {
		errs = multierr.Append(errs, target.TriggerEvent(ctx, name, args...))
	}
	return errs
}

// CreateFrame creates a shown frame. An empty name makes an anonymous
// frame; named frames must be unique.
func (h *Host) CreateFrame(name string) (*Frame, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if name != "" {
		if _, exists := h.named[name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateFrame, name)
		}
	}

	L := h.state.LuaState()
	f := &Frame{
		host:    h,
		name:    name,
		shown:   true,
		scripts: make(map[string]*lua.LFunction),
		hooks:   make(map[string][]scriptHook),
		events:  make(map[string]bool),
	}
	f.ud = L.NewUserData()
	f.ud.Value = f
	L.SetMetatable(f.ud, L.GetTypeMetatable(frameTypeName))

	h.frames = append(h.frames, f)
	if name != "" {
		h.named[name] = f
	}
	return f, nil
}

// Frame returns the named frame.
func (h *Host) Frame(name string) (*Frame, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.named[name]
	return f, ok
}

// Frames returns the number of frames created.
func (h *Host) Frames() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.frames)
}

// hostModule is the Lua host module plus the CreateFrame global.
type hostModule struct {
	host *Host
}

// Name returns the module name.
func (m *hostModule) Name() string {
	return "host"
}

// Register registers the module into the Lua state.
func (m *hostModule) Register(L *lua.LState) error {
	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"fire":    m.fire,
		"events":  m.events,
		"declare": m.declare,
		"frame":   m.frame,
	})
	L.SetGlobal(m.Name(), mod)
	L.SetGlobal("CreateFrame", L.NewFunction(m.createFrame))
	return nil
}

// fire(name, ...) -> true | false, message
func (m *hostModule) fire(L *lua.LState) int {
	name := L.CheckString(1)
	args := plua.NewBridge(L).ToGoArgs(2)

	if err := m.host.Fire(plua.CallContext(L), name, args...); err != nil {
		m.host.logger.Debug("host.fire failed", zap.String("event", name), zap.Error(err))
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

// events() -> { name, ... }
func (m *hostModule) events(L *lua.LState) int {
	t := L.NewTable()
	for _, name := range m.host.Events() {
		t.Append(lua.LString(name))
	}
	L.Push(t)
	return 1
}

// declare(name, ...)
func (m *hostModule) declare(L *lua.LState) int {
	for i := 1; i <= L.GetTop(); i++ {
		m.host.Declare(L.CheckString(i))
	}
	return 0
}

// frame(name) -> frame | nil
func (m *hostModule) frame(L *lua.LState) int {
	if f, ok := m.host.Frame(L.CheckString(1)); ok {
		L.Push(f.ud)
		return 1
	}
	L.Push(lua.LNil)
	return 1
}

// CreateFrame([name [, scripts]]) -> frame
//
// scripts maps lifecycle script names to functions. OnLoad, if given,
// runs before CreateFrame returns.
func (m *hostModule) createFrame(L *lua.LState) int {
	name := L.OptString(1, "")
	scripts := L.OptTable(2, nil)

	f, err := m.host.CreateFrame(name)
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}

	if scripts != nil {
		var serr error
		scripts.ForEach(func(k, v lua.LValue) {
			fn, ok := v.(*lua.LFunction)
			if !ok {
				return
			}
			serr = multierr.Append(serr, f.SetScript(k.String(), fn))
		})
		if serr != nil {
			L.ArgError(2, serr.Error())
			return 0
		}
	}

	if err := f.Load(plua.CallContext(L)); err != nil {
		m.host.logger.Warn("frame OnLoad failed", zap.String("frame", name), zap.Error(err))
	}

	L.Push(f.ud)
	return 1
}
