package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the capsule does not exist or is not visible to the caller.
	ErrNotFound = errors.New("capsule not found")
	// ErrForbidden means the caller may see the capsule but not perform the action.
	ErrForbidden = errors.New("operation not permitted")
)

// ValidationError reports a missing or malformed user input. The operation
// that returned it made no writes.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

// DependencyError wraps a failed call to the database, object storage or
// another external collaborator.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// Dependency wraps err as a DependencyError. A nil err stays nil.
func Dependency(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DependencyError{Op: op, Err: err}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsDependency reports whether err carries a DependencyError.
func IsDependency(err error) bool {
	var d *DependencyError
	return errors.As(err, &d)
}
