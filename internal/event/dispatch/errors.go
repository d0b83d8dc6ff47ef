package dispatch

import (
	"errors"
	"fmt"
)

// ErrHandlerPanic is matched by every *PanicError.
var ErrHandlerPanic = errors.New("handler panicked")

// PanicError wraps a panic value recovered from a handler.
type PanicError struct {
	// Event is the identifier being dispatched when the handler panicked.
	Event string

	// Value is the value passed to panic().
	Value any

	// Stack is the stack trace at the time of the panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic on event %s: %v", e.Event, e.Value)
}

// Is allows errors.Is to match PanicError with ErrHandlerPanic.
func (e *PanicError) Is(target error) bool {
	return target == ErrHandlerPanic
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
