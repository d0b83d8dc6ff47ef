package dispatch

import (
	"context"
	"time"
)

// Handler is the callable a Strategy runs. event.Handler satisfies it;
// the two are declared separately so this package does not import event.
type Handler interface {
	HandleEvent(ctx context.Context, event string, args ...any) error
}

// Strategy decides how a handler is run and whether its failure
// escapes the dispatch pass. A bus selects one Strategy at construction.
type Strategy interface {
	// Invoke runs the handler for the named event.
	// A non-nil error aborts the remainder of the current dispatch pass.
	Invoke(ctx context.Context, handler Handler, event string, args []any) (Result, error)

	// Name identifies the strategy in logs and stats.
	Name() string
}

// Result is what an Executor observed while running one handler.
type Result struct {
	// Success is true if the handler completed without error or panic.
	Success bool

	// Error is the error returned by the handler, or a *PanicError.
	Error error

	// Panicked is true if the handler panicked.
	Panicked bool

	// PanicValue is the value passed to panic(), if Panicked is true.
	PanicValue any

	// PanicStack is the stack trace at the point of panic.
	PanicStack []byte

	// Duration is how long the handler took to execute.
	Duration time.Duration
}

// IsSuccess reports whether the handler returned normally with a nil error.
func (r Result) IsSuccess() bool {
	return r.Success && !r.Panicked && r.Error == nil
}

// IsError reports a returned error. Panics are not errors here.
func (r Result) IsError() bool {
	return r.Error != nil && !r.Panicked
}

// IsPanic reports whether the handler panicked.
func (r Result) IsPanic() bool {
	return r.Panicked
}
