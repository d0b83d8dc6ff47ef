package event

import (
	"errors"

	"github.com/dshills/hookbus/internal/event/dispatch"
)

// Sentinel errors for the event bus.
//
// Registration never returns these; malformed registrations are silent
// no-ops. They surface through ValidateEvent and handler failure records.
var (
	// ErrInvalidEvent is returned when an event identifier is empty or malformed.
	ErrInvalidEvent = errors.New("invalid event identifier")

	// ErrNilHandler is returned when a nil handler is provided.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrHandlerNotComparable is returned for handler values that cannot be compared.
	ErrHandlerNotComparable = errors.New("handler is not comparable")

	// ErrHandlerPanic is matched by panics recovered from handlers.
	ErrHandlerPanic = dispatch.ErrHandlerPanic
)

// PanicError wraps a panic value recovered from a handler.
type PanicError = dispatch.PanicError

// HandlerError wraps an error returned by a handler under the direct strategy.
type HandlerError struct {
	// Bus is the name of the bus that dispatched the event.
	Bus string

	// Event is the identifier being dispatched.
	Event string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return "handler error on bus " + e.Bus + " for event " + e.Event + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}
