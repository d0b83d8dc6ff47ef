package dispatch

import (
	"context"
	"runtime/debug"

	"github.com/benbjohnson/clock"
)

// Executor handles the actual execution of event handlers with
// panic recovery and timing.
type Executor struct {
	clock clock.Clock
}

// NewExecutor creates a new executor with the given options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		clock: clock.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithClock sets the clock used to time handler execution.
func WithClock(c clock.Clock) ExecutorOption {
	return func(e *Executor) {
		if c != nil {
			e.clock = c
		}
	}
}

// Execute runs a handler and returns the result.
// It recovers from panics and captures timing information.
func (e *Executor) Execute(ctx context.Context, handler Handler, event string, args []any) (result Result) {
	start := e.clock.Now()

	defer func() {
		result.Duration = e.clock.Since(start)

		if r := recover(); r != nil {
			stack := debug.Stack()

			result.Success = false
			result.Panicked = true
			result.PanicValue = r
			result.PanicStack = stack
			result.Error = &PanicError{
				Event: event,
				Value: r,
				Stack: string(stack),
			}
		}
	}()

	if err := handler.HandleEvent(ctx, event, args...); err != nil {
		result.Error = err
		return result
	}

	result.Success = true
	return result
}

// ExecuteUnguarded runs a handler without panic recovery.
// A panic unwinds through the caller.
func (e *Executor) ExecuteUnguarded(ctx context.Context, handler Handler, event string, args []any) Result {
	start := e.clock.Now()
	err := handler.HandleEvent(ctx, event, args...)

	return Result{
		Success:  err == nil,
		Error:    err,
		Duration: e.clock.Since(start),
	}
}
