package lua

import (
	"errors"
	"fmt"
)

// Errors for Lua state operations.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrNotFunction is returned when a called value is not a Lua function.
	ErrNotFunction = errors.New("not a lua function")
)

// ScriptError reports a failure while running a script chunk.
type ScriptError struct {
	Chunk string
	Err   error
}

// Error implements the error interface.
func (e *ScriptError) Error() string {
	return fmt.Sprintf("lua script %s: %v", e.Chunk, e.Err)
}

// Unwrap returns the underlying error.
func (e *ScriptError) Unwrap() error {
	return e.Err
}

func wrapScriptError(chunk string, err error) error {
	if err == nil {
		return nil
	}
	return &ScriptError{Chunk: chunk, Err: err}
}
