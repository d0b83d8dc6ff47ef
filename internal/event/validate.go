package event

import (
	"fmt"
	"unicode"
)

// MaxEventLength bounds the length of an event identifier.
const MaxEventLength = 255

// ValidateEvent checks that name is usable as an event identifier:
// non-empty, at most MaxEventLength bytes, no whitespace or control characters.
func ValidateEvent(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidEvent)
	}
	if len(name) > MaxEventLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidEvent, MaxEventLength)
	}
	for _, r := range name {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains whitespace or control characters", ErrInvalidEvent, name)
		}
	}
	return nil
}

// validateHandler checks that h can be stored and later found by identity.
func validateHandler(h Handler) error {
	if h == nil {
		return ErrNilHandler
	}
	if !isComparable(h) {
		return ErrHandlerNotComparable
	}
	return nil
}
