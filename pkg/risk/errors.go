package risk

import (
	"errors"
	"fmt"
)

// ErrInvalidEvent matches every *ValidationError via errors.Is.
var ErrInvalidEvent = errors.New("invalid event")

// ValidationError reports why a raw record could not become a LogEvent.
// It is the only error kind produced by this package.
type ValidationError struct {
	// Index is the position of the record within its batch, or -1 when the
	// record was parsed on its own.
	Index int `json:"index"`

	// Field is the JSON name of the offending field: timestamp, host,
	// service or level.
	Field string `json:"field"`

	// Value is the rejected input, verbatim.
	Value string `json:"value,omitempty"`

	// Reason is a short human-readable explanation.
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("event %d: %s: %s", e.Index, e.Field, e.Reason)
}

// Is reports whether target is ErrInvalidEvent.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidEvent
}

func invalid(field, value, reason string) *ValidationError {
	return &ValidationError{Index: -1, Field: field, Value: value, Reason: reason}
}
