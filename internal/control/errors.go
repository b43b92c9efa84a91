package control

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports an unknown setup identifier.
	ErrNotFound = errors.New("setup not found")
	// ErrInvalidArgument reports a malformed field or window value.
	ErrInvalidArgument = errors.New("invalid argument")
)

// InvalidTransitionError reports a status edge the transition table
// does not permit. The record is left untouched when it is returned.
type InvalidTransitionError struct {
	Setup string
	From  Status
	To    Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition for %s: %s -> %s", e.Setup, e.From, e.To)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var ite *InvalidTransitionError
	return errors.As(err, &ite)
}

// SetupError pairs a setup identifier with the error its update produced.
type SetupError struct {
	Setup string `json:"setup"`
	Err   error  `json:"-"`
	Error string `json:"error"`
}

// BulkResult reports the mixed outcome of a bulk update. Partial
// success is expected and surfaced per setup, never swallowed.
type BulkResult struct {
	UpdatedCount int          `json:"updated_count"`
	Errors       []SetupError `json:"errors,omitempty"`
}
