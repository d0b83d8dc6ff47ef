package plugin

import "errors"

// Script host errors.
var (
	// ErrUnknownScript is returned for a lifecycle script name frames do not have.
	ErrUnknownScript = errors.New("unknown frame script")

	// ErrDuplicateFrame is returned when a frame name is already taken.
	ErrDuplicateFrame = errors.New("frame name already in use")

	// ErrUndeclaredEvent is returned by a strict host for events it does not declare.
	ErrUndeclaredEvent = errors.New("event not declared by host")
)

// ScriptError reports a frame script that raised a Lua error.
type ScriptError struct {
	Frame  string
	Script string
	Err    error
}

// Error implements the error interface.
func (e *ScriptError) Error() string {
	name := e.Frame
	if name == "" {
		name = "<anonymous>"
	}
	return "frame " + name + " " + e.Script + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ScriptError) Unwrap() error {
	return e.Err
}
