package hooks

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a mid-trajectory, post-action,
	// or release call names a session the registry does not hold.
	ErrSessionNotFound = errors.New("session not found")

	// ErrStateCorrupt is returned alongside the terminal decision when a
	// trajectory state invariant check fails. Only the corrupted session
	// is terminated; other sessions are unaffected.
	ErrStateCorrupt = errors.New("trajectory state corrupt")
)

// InputError reports malformed hook input. It is a caller error: the
// evaluation never started, no decision was recorded.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func badInput(field, reason string) *InputError {
	return &InputError{Field: field, Reason: reason}
}
