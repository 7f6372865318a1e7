package store

import (
	"errors"
	"fmt"
)

// ClosedCode is the diagnostic code carried by ClosedError.
const ClosedCode = 5105

// ErrClosed is returned when an operation is attempted on a store that is
// closed or never opened successfully. Use errors.Is to test for it.
var ErrClosed = &ClosedError{Code: ClosedCode}

// ClosedError reports use of a store that is not open. Cause holds the
// connect failure when the store never opened.
type ClosedError struct {
	Code  int
	Cause error
}

func (e *ClosedError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return fmt.Sprintf("Already closed (code %d): connect failed: %v", e.Code, e.Cause)
	}
	return fmt.Sprintf("Already closed (code %d)", e.Code)
}

func (e *ClosedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches any ClosedError with the same code, so errors.Is(err, ErrClosed)
// holds whether or not a cause is attached.
func (e *ClosedError) Is(target error) bool {
	var t *ClosedError
	if !errors.As(target, &t) || t == nil || e == nil {
		return false
	}
	return e.Code == t.Code
}

// ConfigurationError reports invalid construction options.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Field == "" {
		return "milestonedb: invalid configuration: " + e.Reason
	}
	return fmt.Sprintf("milestonedb: invalid configuration %s: %s", e.Field, e.Reason)
}
