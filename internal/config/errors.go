package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is matched by every ValidationError.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError describes a setting with an unusable value.
type ValidationError struct {
	// Path is the dotted setting path, e.g. "log.level".
	Path string
	// Message describes the problem.
	Message string
	// Value is the rejected value.
	Value any
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (value: %v)", e.Path, e.Message, e.Value)
}

// Is reports whether target is ErrInvalidConfig.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// DecodeError reports merged settings that do not fit the Config shape,
// such as unknown keys or a list where a string is expected.
type DecodeError struct {
	Sources []string
	Err     error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode config from %s: %v", strings.Join(e.Sources, ", "), e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}
