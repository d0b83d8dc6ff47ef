package event

import (
	"context"
	"reflect"
)

// Handler is the interface for event handlers.
//
// Handler identity is interface equality: registering the same value twice
// for one event is a no-op, and UnregisterEvent finds a handler by the value
// it was registered with. The dynamic type must therefore be comparable;
// pointer receivers are the usual choice.
type Handler interface {
	// HandleEvent processes one triggered event.
	HandleEvent(ctx context.Context, event string, args ...any) error
}

// Func is the function signature accepted by HandlerFunc.
type Func func(ctx context.Context, event string, args ...any) error

// funcHandler gives a function a stable identity.
type funcHandler struct {
	fn Func
}

// HandleEvent implements Handler.
func (h *funcHandler) HandleEvent(ctx context.Context, event string, args ...any) error {
	return h.fn(ctx, event, args...)
}

// HandlerFunc wraps fn in a Handler. Each call returns a distinct handler,
// so keep the returned value to unregister it later.
// A nil fn yields a nil Handler.
func HandlerFunc(fn Func) Handler {
	if fn == nil {
		return nil
	}
	return &funcHandler{fn: fn}
}

// UnregisterFunc removes a registration. It is safe to call more than once
// and after the handler was removed by other means.
type UnregisterFunc func()

// Stats contains event bus statistics.
type Stats struct {
	// Triggers is the number of TriggerEvent calls that found handlers.
	Triggers uint64

	// HandlersExecuted is the total number of handler invocations.
	HandlersExecuted uint64

	// HandlerErrors is the number of handlers that returned errors.
	HandlerErrors uint64

	// HandlerPanics is the number of handlers that panicked.
	HandlerPanics uint64

	// Compactions is the number of handler lists rebuilt after deactivation.
	Compactions uint64

	// BindFailures is the number of identifiers the source refused.
	BindFailures uint64

	// BoundEvents is the number of identifiers currently bound to the source.
	BoundEvents int

	// Handlers is the number of stored handler entries, including
	// deactivated entries not yet compacted.
	Handlers int
}

// isComparable reports whether h can be used as a map key or compared with ==.
// The value is inspected, not only its type: a struct whose interface field
// holds a slice has a comparable type but panics when compared.
func isComparable(h Handler) bool {
	if h == nil {
		return false
	}
	return reflect.ValueOf(h).Comparable()
}
