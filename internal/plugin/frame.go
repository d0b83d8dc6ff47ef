package plugin

import (
	"context"
	"fmt"
	"slices"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/hookbus/internal/event"
	plua "github.com/dshills/hookbus/internal/plugin/lua"
)

// Lifecycle scripts a frame can carry.
const (
	ScriptOnLoad  = "OnLoad"
	ScriptOnShow  = "OnShow"
	ScriptOnHide  = "OnHide"
	ScriptOnEvent = "OnEvent"
)

const frameTypeName = "Frame"

func validScript(script string) bool {
	switch script {
	case ScriptOnLoad, ScriptOnShow, ScriptOnHide, ScriptOnEvent:
		return true
	}
	return false
}

// scriptHook runs after a lifecycle script; exactly one field is set.
type scriptHook struct {
	fn   *lua.LFunction
	goFn func(ctx context.Context, args []any)
}

// Frame is a scriptable object owned by a Host. Scripts receive the frame
// as their first argument. Frame state is guarded by the host mutex.
type Frame struct {
	host *Host
	name string
	ud   *lua.LUserData

	shown   bool
	scripts map[string]*lua.LFunction
	hooks   map[string][]scriptHook
	events  map[string]bool
}

// Name returns the frame name, empty for anonymous frames.
func (f *Frame) Name() string {
	return f.name
}

// Object returns the Lua userdata representing the frame.
func (f *Frame) Object() *lua.LUserData {
	return f.ud
}

// RegisterEvent makes the frame's OnEvent script receive name.
// It reports false for invalid, undeclared (strict hosts) or already
// registered events.
func (f *Frame) RegisterEvent(name string) bool {
	if event.ValidateEvent(name) != nil {
		return false
	}

	h := f.host
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.provides(name) || f.events[name] {
		return false
	}
	f.events[name] = true
	h.listeners[name] = append(h.listeners[name], f)
	return true
}

// UnregisterEvent stops delivery of name to the frame.
func (f *Frame) UnregisterEvent(name string) {
	h := f.host
	h.mu.Lock()
	defer h.mu.Unlock()
	f.unregisterLocked(name)
}

// UnregisterAllEvents stops delivery of every event to the frame.
func (f *Frame) UnregisterAllEvents() {
	h := f.host
	h.mu.Lock()
	defer h.mu.Unlock()

	for name := range f.events {
		f.unregisterLocked(name)
	}
}

func (f *Frame) unregisterLocked(name string) {
	if !f.events[name] {
		return
	}
	delete(f.events, name)

	h := f.host
	rest := slices.DeleteFunc(slices.Clone(h.listeners[name]), func(g *Frame) bool { return g == f })
	if len(rest) == 0 {
		delete(h.listeners, name)
	} else {
		h.listeners[name] = rest
	}
}

// IsEventRegistered reports whether the frame receives name.
func (f *Frame) IsEventRegistered(name string) bool {
	f.host.mu.Lock()
	defer f.host.mu.Unlock()
	return f.events[name]
}

// SetScript sets or, with a nil fn, clears a lifecycle script.
func (f *Frame) SetScript(script string, fn *lua.LFunction) error {
	if !validScript(script) {
		return fmt.Errorf("%w: %s", ErrUnknownScript, script)
	}

	f.host.mu.Lock()
	defer f.host.mu.Unlock()

	if fn == nil {
		delete(f.scripts, script)
	} else {
		f.scripts[script] = fn
	}
	return nil
}

// Script returns the lifecycle script, or nil.
func (f *Frame) Script(script string) *lua.LFunction {
	f.host.mu.Lock()
	defer f.host.mu.Unlock()
	return f.scripts[script]
}

// HookScript appends a Lua function to run after script. Unlike
// registry hooks, Lua hooks are not deduplicated.
func (f *Frame) HookScript(script string, fn *lua.LFunction) error {
	if fn == nil {
		return fmt.Errorf("hook for %s is nil", script)
	}
	return f.addHook(script, scriptHook{fn: fn})
}

// AddScriptHook appends a Go function to run after script with the
// script's arguments, excluding the frame.
func (f *Frame) AddScriptHook(script string, fn func(ctx context.Context, args []any)) error {
	if fn == nil {
		return fmt.Errorf("hook for %s is nil", script)
	}
	return f.addHook(script, scriptHook{goFn: fn})
}

func (f *Frame) addHook(script string, hk scriptHook) error {
	if !validScript(script) {
		return fmt.Errorf("%w: %s", ErrUnknownScript, script)
	}

	f.host.mu.Lock()
	defer f.host.mu.Unlock()
	f.hooks[script] = append(f.hooks[script], hk)
	return nil
}

// Load runs the OnLoad script.
func (f *Frame) Load(ctx context.Context) error {
	return f.run(ctx, ScriptOnLoad, nil)
}

// Show shows a hidden frame and runs OnShow.
func (f *Frame) Show(ctx context.Context) error {
	f.host.mu.Lock()
	if f.shown {
		f.host.mu.Unlock()
		return nil
	}
	f.shown = true
	f.host.mu.Unlock()

	return f.run(ctx, ScriptOnShow, nil)
}

// Hide hides a shown frame and runs OnHide.
func (f *Frame) Hide(ctx context.Context) error {
	f.host.mu.Lock()
	if !f.shown {
		f.host.mu.Unlock()
		return nil
	}
	f.shown = false
	f.host.mu.Unlock()

	return f.run(ctx, ScriptOnHide, nil)
}

// IsShown reports whether the frame is shown.
func (f *Frame) IsShown() bool {
	f.host.mu.Lock()
	defer f.host.mu.Unlock()
	return f.shown
}

// fireEvent runs OnEvent for name if the frame still receives it.
func (f *Frame) fireEvent(ctx context.Context, name string, args []any) error {
	if !f.IsEventRegistered(name) {
		return nil
	}
	return f.run(ctx, ScriptOnEvent, append([]any{name}, args...))
}

// run calls the script and then its hooks. Hook failures are logged and
// do not affect the returned error.
func (f *Frame) run(ctx context.Context, script string, args []any) error {
	f.host.mu.Lock()
	fn := f.scripts[script]
	hooks := slices.Clone(f.hooks[script])
	f.host.mu.Unlock()

	L := f.host.state.LuaState()
	bridge := plua.NewBridge(L)
	luaArgs := append([]lua.LValue{f.ud}, bridge.ToLuaArgs(args)...)

	var err error
	if fn != nil {
		if _, cerr := plua.CallFunctionContext(ctx, L, fn, luaArgs...); cerr != nil {
			err = &ScriptError{Frame: f.name, Script: script, Err: cerr}
		}
	}

	for _, hk := range hooks {
		if hk.goFn != nil {
			hk.goFn(ctx, args)
			continue
		}
		if _, herr := plua.CallFunctionContext(ctx, L, hk.fn, luaArgs...); herr != nil {
			f.host.logger.Warn("frame script hook failed",
				zap.String("frame", f.name),
				zap.String("script", script),
				zap.Error(herr))
		}
	}
	return err
}

// registerFrameType installs the Frame metatable.
func registerFrameType(L *lua.LState, h *Host) {
	mt := L.NewTypeMetatable(frameTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"GetName":             frameGetName,
		"RegisterEvent":       frameRegisterEvent,
		"UnregisterEvent":     frameUnregisterEvent,
		"UnregisterAllEvents": frameUnregisterAllEvents,
		"IsEventRegistered":   frameIsEventRegistered,
		"SetScript":           frameSetScript,
		"GetScript":           frameGetScript,
		"HookScript":          frameHookScript,
		"Show":                frameShow(h),
		"Hide":                frameHide(h),
		"IsShown":             frameIsShown,
	}))
	L.SetField(mt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		f := checkFrame(L)
		L.Push(lua.LString("Frame(" + f.name + ")"))
		return 1
	}))
}

func checkFrame(L *lua.LState) *Frame {
	ud := L.CheckUserData(1)
	f, ok := ud.Value.(*Frame)
	if !ok {
		L.ArgError(1, "frame expected")
		return nil
	}
	return f
}

func frameGetName(L *lua.LState) int {
	f := checkFrame(L)
	if f.name == "" {
		L.Push(lua.LNil)
	} else {
		L.Push(lua.LString(f.name))
	}
	return 1
}

func frameRegisterEvent(L *lua.LState) int {
	f := checkFrame(L)
	L.Push(lua.LBool(f.RegisterEvent(L.CheckString(2))))
	return 1
}

func frameUnregisterEvent(L *lua.LState) int {
	checkFrame(L).UnregisterEvent(L.CheckString(2))
	return 0
}

func frameUnregisterAllEvents(L *lua.LState) int {
	checkFrame(L).UnregisterAllEvents()
	return 0
}

func frameIsEventRegistered(L *lua.LState) int {
	f := checkFrame(L)
	L.Push(lua.LBool(f.IsEventRegistered(L.CheckString(2))))
	return 1
}

func frameSetScript(L *lua.LState) int {
	f := checkFrame(L)
	if err := f.SetScript(L.CheckString(2), L.OptFunction(3, nil)); err != nil {
		L.ArgError(2, err.Error())
	}
	return 0
}

func frameGetScript(L *lua.LState) int {
	f := checkFrame(L)
	if fn := f.Script(L.CheckString(2)); fn != nil {
		L.Push(fn)
	} else {
		L.Push(lua.LNil)
	}
	return 1
}

func frameHookScript(L *lua.LState) int {
	f := checkFrame(L)
	if err := f.HookScript(L.CheckString(2), L.CheckFunction(3)); err != nil {
		L.ArgError(2, err.Error())
	}
	return 0
}

func frameShow(h *Host) lua.LGFunction {
	return func(L *lua.LState) int {
		f := checkFrame(L)
		if err := f.Show(plua.CallContext(L)); err != nil {
			h.logger.Warn("frame OnShow failed", zap.String("frame", f.name), zap.Error(err))
		}
		return 0
	}
}

func frameHide(h *Host) lua.LGFunction {
	return func(L *lua.LState) int {
		f := checkFrame(L)
		if err := f.Hide(plua.CallContext(L)); err != nil {
			h.logger.Warn("frame OnHide failed", zap.String("frame", f.name), zap.Error(err))
		}
		return 0
	}
}

func frameIsShown(L *lua.LState) int {
	L.Push(lua.LBool(checkFrame(L).IsShown()))
	return 1
}
