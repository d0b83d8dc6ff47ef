package api

import (
	"context"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/hookbus/internal/event"
	"github.com/dshills/hookbus/internal/plugin/hook"
	plua "github.com/dshills/hookbus/internal/plugin/lua"
)

// EventModule implements the Lua events module on top of a bus.
//
// Lua handlers receive (event, args...). A Lua function maps to one
// stable handler value, so registering the same function twice is a
// no-op and unregistering it by reference works as expected.
type EventModule struct {
	bus    *event.Bus
	hooks  *hook.Registry
	logger *zap.Logger

	mu       sync.Mutex
	L        *lua.LState
	handlers map[*lua.LFunction]*luaHandler
	sweepAt  int
}

// minSweep is the handler count below which handlerFor never sweeps.
const minSweep = 64

// EventOption configures an EventModule.
type EventOption func(*EventModule)

// WithHookRegistry sets the registry used by events.hook and
// events.hook_script. The default is hook.Default().
func WithHookRegistry(r *hook.Registry) EventOption {
	return func(m *EventModule) {
		if r != nil {
			m.hooks = r
		}
	}
}

// WithEventLogger sets the logger.
func WithEventLogger(logger *zap.Logger) EventOption {
	return func(m *EventModule) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewEventModule creates an events module bound to bus.
func NewEventModule(bus *event.Bus, opts ...EventOption) *EventModule {
	m := &EventModule{
		bus:      bus,
		logger:   zap.NewNop(),
		handlers: make(map[*lua.LFunction]*luaHandler),
		sweepAt:  minSweep,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.hooks == nil {
		m.hooks = hook.Default()
	}
	return m
}

// Name returns the module name.
func (m *EventModule) Name() string {
	return "events"
}

// Register registers the module into the Lua state.
func (m *EventModule) Register(L *lua.LState) error {
	m.mu.Lock()
	m.L = L
	m.mu.Unlock()

	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"register":       m.register,
		"once":           m.once,
		"unregister":     m.unregister,
		"unregister_all": m.unregisterAll,
		"trigger":        m.trigger,
		"is_registered":  m.isRegistered,
		"hook":           m.hook,
		"hook_script":    m.hookScript,
	})
	L.SetField(mod, "bus", lua.LString(m.bus.Name()))
	L.SetGlobal(m.Name(), mod)
	return nil
}

// luaHandler runs a Lua function as an event handler.
type luaHandler struct {
	m  *EventModule
	fn *lua.LFunction

	// pinned handlers back a hook and are never released.
	pinned bool
}

// HandleEvent implements event.Handler.
func (h *luaHandler) HandleEvent(ctx context.Context, name string, args ...any) error {
	h.m.mu.Lock()
	L := h.m.L
	h.m.mu.Unlock()
	if L == nil {
		return plua.ErrStateClosed
	}

	bridge := plua.NewBridge(L)
	luaArgs := append([]lua.LValue{lua.LString(name)}, bridge.ToLuaArgs(args)...)
	_, err := plua.CallFunctionContext(ctx, L, h.fn, luaArgs...)
	return err
}

// handlerFor returns the handler for fn, creating it on first use.
func (m *EventModule) handlerFor(fn *lua.LFunction) *luaHandler {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.handlers[fn]
	if !ok {
		if len(m.handlers) >= m.sweepAt {
			m.sweepLocked()
			m.sweepAt = max(minSweep, 2*len(m.handlers))
		}
		h = &luaHandler{m: m, fn: fn}
		m.handlers[fn] = h
	}
	return h
}

// release forgets h once the bus no longer holds it, so a function that
// is unregistered everywhere can be collected.
func (m *EventModule) release(h *luaHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !h.pinned && m.handlers[h.fn] == h && !m.bus.Holds(h) {
		delete(m.handlers, h.fn)
	}
}

// sweep releases every handler the bus no longer holds.
func (m *EventModule) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
}

func (m *EventModule) sweepLocked() {
	for fn, h := range m.handlers {
		if !h.pinned && !m.bus.Holds(h) {
			delete(m.handlers, fn)
		}
	}
}

// Handlers returns the number of Lua functions currently mapped to
// handlers.
func (m *EventModule) Handlers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}

// lookup returns the handler for fn without creating one.
func (m *EventModule) lookup(fn *lua.LFunction) (*luaHandler, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.handlers[fn]
	return h, ok
}

// nameAndFunc reads (string, function) arguments. Wrong shapes are
// reported through ok, never raised.
func nameAndFunc(L *lua.LState) (name string, fn *lua.LFunction, ok bool) {
	s, ok1 := L.Get(1).(lua.LString)
	f, ok2 := L.Get(2).(*lua.LFunction)
	return string(s), f, ok1 && ok2
}

// register(name, fn) -> bool
func (m *EventModule) register(L *lua.LState) int {
	name, fn, ok := nameAndFunc(L)
	if ok {
		_, ok = m.bus.RegisterEvent(name, m.handlerFor(fn))
	}
	L.Push(lua.LBool(ok))
	return 1
}

// once(name, fn) -> bool
func (m *EventModule) once(L *lua.LState) int {
	name, fn, ok := nameAndFunc(L)
	if ok {
		_, ok = m.bus.RegisterEventOnce(name, m.handlerFor(fn))
	}
	L.Push(lua.LBool(ok))
	return 1
}

// unregister(name, fn)
func (m *EventModule) unregister(L *lua.LState) int {
	name, fn, ok := nameAndFunc(L)
	if !ok {
		return 0
	}
	if h, known := m.lookup(fn); known {
		m.bus.UnregisterEvent(name, h)
		m.release(h)
	}
	return 0
}

// unregister_all(name)
func (m *EventModule) unregisterAll(L *lua.LState) int {
	if name, ok := L.Get(1).(lua.LString); ok {
		m.bus.UnregisterAll(string(name))
		m.sweep()
	}
	return 0
}

// trigger(name, ...) -> true | false, message
func (m *EventModule) trigger(L *lua.LState) int {
	name, ok := L.Get(1).(lua.LString)
	if !ok {
		L.Push(lua.LFalse)
		L.Push(lua.LString("event name must be a string"))
		return 2
	}

	args := plua.NewBridge(L).ToGoArgs(2)
	if err := m.bus.TriggerEvent(plua.CallContext(L), string(name), args...); err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

// is_registered(name) -> bool
func (m *EventModule) isRegistered(L *lua.LState) int {
	name, ok := L.Get(1).(lua.LString)
	L.Push(lua.LBool(ok && m.bus.IsRegistered(string(name))))
	return 1
}

// hook(target, member [, event | fn]) -> installed, message
//
// Installs a post-hook on target[member]. Each call then triggers event
// (default: member) on this module's bus, or calls fn directly.
func (m *EventModule) hook(L *lua.LState) int {
	target, ok1 := L.Get(1).(*lua.LTable)
	member, ok2 := L.Get(2).(lua.LString)
	if !ok1 || !ok2 {
		return pushResult(L, false, "hook expects (table, string)")
	}

	h := m.hookHandler(L, 3, string(member))
	installed, err := m.hooks.HookFunction(L, target, string(member), h)
	if err != nil {
		return pushResult(L, false, err.Error())
	}
	return pushResult(L, installed, "")
}

// hook_script(frame, script [, event | fn]) -> installed, message
func (m *EventModule) hookScript(L *lua.LState) int {
	ud, ok1 := L.Get(1).(*lua.LUserData)
	script, ok2 := L.Get(2).(lua.LString)
	if !ok1 || !ok2 {
		return pushResult(L, false, "hook_script expects (frame, string)")
	}
	target, ok := ud.Value.(hook.Scriptable)
	if !ok {
		return pushResult(L, false, "hook_script target is not a frame")
	}

	h := m.hookHandler(L, 3, string(script))
	installed, err := m.hooks.HookLifecycleCallback(target, string(script), h)
	if err != nil {
		return pushResult(L, false, err.Error())
	}
	return pushResult(L, installed, "")
}

// hookHandler builds the handler for a hook from the optional argument at
// idx: a function is called directly, a string names the event to trigger.
func (m *EventModule) hookHandler(L *lua.LState, idx int, name string) hook.Handler {
	switch v := L.Get(idx).(type) {
	case *lua.LFunction:
		h := m.handlerFor(v)
		m.mu.Lock()
		h.pinned = true
		m.mu.Unlock()
		return h
	case lua.LString:
		name = string(v)
	}
	return &relay{bus: m.bus, event: name}
}

// relay forwards a hooked call to a bus as an event.
type relay struct {
	bus   *event.Bus
	event string
}

// HandleEvent implements event.Handler.
func (r *relay) HandleEvent(ctx context.Context, _ string, args ...any) error {
	return r.bus.TriggerEvent(ctx, r.event, args...)
}

func pushResult(L *lua.LState, ok bool, msg string) int {
	L.Push(lua.LBool(ok))
	if msg == "" {
		return 1
	}
	L.Push(lua.LString(msg))
	return 2
}
