package domain

import (
	"errors"
	"fmt"
)

// Sentinel outcomes reported by the store and the service layer. Match them
// with errors.Is; the typed errors below carry the details.
var (
	// ErrNotFound reports an operation that targeted a missing id.
	ErrNotFound = errors.New("entity not found")
	// ErrAlreadyExists reports a create that collided with an existing id.
	ErrAlreadyExists = errors.New("entity already exists")
	// ErrTransientFailure reports a mutation whose retry budget ran out.
	ErrTransientFailure = errors.New("transient storage failure")
	// ErrValidationMismatch reports caller-supplied identifiers that disagree.
	ErrValidationMismatch = errors.New("validation mismatch")
)

// NotFoundError identifies the missing entity.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("entity %q not found", e.ID)
}

// Is reports whether target is ErrNotFound.
func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// AlreadyExistsError identifies the conflicting entity.
type AlreadyExistsError struct {
	ID string
}

func (e AlreadyExistsError) Error() string {
	return fmt.Sprintf("entity %q already exists", e.ID)
}

// Is reports whether target is ErrAlreadyExists.
func (e AlreadyExistsError) Is(target error) bool { return target == ErrAlreadyExists }

// TransientFailureError is returned once every attempt of a mutation failed.
// Cause holds the error of the last attempt.
type TransientFailureError struct {
	Operation string
	Attempts  int
	Cause     error
}

func (e *TransientFailureError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s failed after %d attempts", e.Operation, e.Attempts)
	}
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Operation, e.Attempts, e.Cause)
}

// Is reports whether target is ErrTransientFailure.
func (e *TransientFailureError) Is(target error) bool { return target == ErrTransientFailure }

func (e *TransientFailureError) Unwrap() error { return e.Cause }

// MismatchError describes disagreeing identifiers, e.g. a path id and a payload id.
type MismatchError struct {
	Field string
	Want  string
	Got   string
}

func (e MismatchError) Error() string {
	return fmt.Sprintf("%s mismatch: want %q, got %q", e.Field, e.Want, e.Got)
}

// Is reports whether target is ErrValidationMismatch.
func (e MismatchError) Is(target error) bool { return target == ErrValidationMismatch }

// IsTerminal reports whether err is a logical outcome that must not be retried.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrValidationMismatch)
}
