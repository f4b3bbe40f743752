package service

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by lookups for an unknown id.
var ErrNotFound = errors.New("not found")

// ValidationError rejects a mutation before anything is written.
type ValidationError struct {
	Field  string
	Reason string
	Err    error // optional cause, e.g. model.ErrInvalidTransition
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap returns the optional cause.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidationError returns true if err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func invalidf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
