package lua

import (
	"context"
	"fmt"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// State wraps a gopher-lua state with a restricted standard library.
//
// gopher-lua's LState is not goroutine-safe. Scripts, event handlers and
// hooks all run on the goroutine that owns the state. Handlers called back
// from Go while a script is running re-enter the same LState, which
// gopher-lua supports; they must not go through State methods, which hold
// the state mutex for the duration of a call.
type State struct {
	L *lua.LState

	mu     sync.Mutex
	closed bool

	logger *zap.Logger
}

// StateOption configures a State.
type StateOption func(*State)

// WithLogger routes Lua print output to logger at info level.
func WithLogger(logger *zap.Logger) StateOption {
	return func(s *State) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// unsafeGlobals are removed from every state. They load code from disk or
// from strings outside the host's control.
var unsafeGlobals = []string{"dofile", "loadfile", "load", "loadstring", "require", "module"}

// NewState creates a Lua state with the base, table, string and math
// libraries.
func NewState(opts ...StateOption) (*State, error) {
	state := &State{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(state)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.fn), NRet: 0, Protect: true}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, fmt.Errorf("open %s library: %w", lib.name, err)
		}
	}

	for _, name := range unsafeGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	L.SetGlobal("print", L.NewFunction(state.print))

	state.L = L
	return state, nil
}

// print logs its arguments joined by tabs, like the stock print.
func (s *State) print(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	s.logger.Info(strings.Join(parts, "\t"), zap.String("source", "lua"))
	return 0
}

// DoFile executes a Lua file.
func (s *State) DoFile(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStateClosed
	}
	return wrapScriptError(path, s.protect(func() error {
		return s.L.DoFile(path)
	}))
}

// DoString executes a chunk of Lua source.
func (s *State) DoString(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStateClosed
	}
	return wrapScriptError("<string>", s.protect(func() error {
		return s.L.DoString(code)
	}))
}

// protect converts a Go panic escaping the interpreter into an error.
func (s *State) protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// Call calls a global Lua function and returns its results.
func (s *State) Call(fn string, args ...lua.LValue) ([]lua.LValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStateClosed
	}

	f, ok := s.L.GetGlobal(fn).(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFunction, fn)
	}

	var results []lua.LValue
	err := s.protect(func() error {
		var err error
		results, err = CallFunction(s.L, f, args...)
		return err
	})
	return results, err
}

// GetGlobal returns a global variable value.
func (s *State) GetGlobal(name string) lua.LValue {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return lua.LNil
	}
	return s.L.GetGlobal(name)
}

// SetGlobal sets a global variable.
func (s *State) SetGlobal(name string, value lua.LValue) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.L.SetGlobal(name, value)
}

// LuaState returns the underlying gopher-lua state.
func (s *State) LuaState() *lua.LState {
	return s.L
}

// IsClosed returns true if the state has been closed.
func (s *State) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases the Lua state. Further calls return ErrStateClosed.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.L.Close()
	s.closed = true
	return nil
}

// CallFunction calls fn on L with args and returns every result. Lua errors
// are returned, not raised.
func CallFunction(L *lua.LState, fn *lua.LFunction, args ...lua.LValue) ([]lua.LValue, error) {
	top := L.GetTop()

	L.Push(fn)
	for _, arg := range args {
		L.Push(arg)
	}
	if err := L.PCall(len(args), lua.MultRet, nil); err != nil {
		return nil, err
	}

	n := L.GetTop() - top
	results := make([]lua.LValue, n)
	for i := 0; i < n; i++ {
		results[i] = L.Get(top + i + 1)
	}
	L.Pop(n)
	return results, nil
}

// CallFunctionContext is CallFunction with ctx attached to L for the
// duration of the call. Go functions reached from fn see ctx through
// CallContext, and a done ctx stops fn with an error. The previous context
// is restored afterwards.
func CallFunctionContext(ctx context.Context, L *lua.LState, fn *lua.LFunction, args ...lua.LValue) ([]lua.LValue, error) {
	prev := L.Context()
	if ctx == nil || ctx == prev {
		return CallFunction(L, fn, args...)
	}

	L.SetContext(ctx)
	defer func() {
		if prev != nil {
			L.SetContext(prev)
		} else {
			L.RemoveContext()
		}
	}()
	return CallFunction(L, fn, args...)
}

// CallContext returns the context attached to L, or context.Background.
func CallContext(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
