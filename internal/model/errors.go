package model

import (
	"errors"
	"fmt"
)

// ValidationError reports a definition that cannot be deployed as written.
// It is scoped to a single definition file.
type ValidationError struct {
	Subject string // file, product or materialized view the error is about
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.Subject == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Subject, e.Reason)
}

// NewValidationError builds a ValidationError with a formatted reason
func NewValidationError(subject, format string, args ...interface{}) *ValidationError {
	return &ValidationError{
		Subject: subject,
		Reason:  fmt.Sprintf(format, args...),
	}
}

// IsValidationError reports whether err wraps a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
