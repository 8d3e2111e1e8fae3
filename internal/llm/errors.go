package llm

import (
	"errors"
	"fmt"
)

// ErrEmptyChoices is returned when a completion response carries no choices.
var ErrEmptyChoices = errors.New("llm: response has no choices")

// TransientError is a failure that may succeed on retry.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string { return e.err.Error() }
func (e *TransientError) Unwrap() error { return e.err }

// FatalError is a failure that retrying will not fix.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string { return e.err.Error() }
func (e *FatalError) Unwrap() error { return e.err }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// statusError classifies an HTTP error status.
func statusError(status int, body []byte) error {
	err := fmt.Errorf("llm: status %d: %s", status, body)
	if status == 429 || status >= 500 {
		return &TransientError{err: err}
	}
	return &FatalError{err: err}
}
