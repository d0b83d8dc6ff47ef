package app

import "errors"

// Application errors.
var (
	// ErrInitialization wraps failures building the application graph.
	ErrInitialization = errors.New("initialization failed")

	// ErrNoTerminal is returned by Pump when the terminal source is disabled.
	ErrNoTerminal = errors.New("terminal source not enabled")
)
