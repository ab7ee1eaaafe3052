// Package errors provides standardized domain errors that express business intent
// rather than infrastructure details. These errors should be used by use cases
// and mapped to appropriate HTTP status codes by handlers.
package errors

import (
	"errors"
	"fmt"
)

// Standard domain errors that can be used across all domain modules.
var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a conflict with existing data (e.g., duplicate key).
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indicates the input data is invalid or fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStaleStateTransition indicates a state-transition precondition was not
	// met: the event log entry is not in the required source state, typically
	// because a concurrent publisher already claimed or finalized it. Callers
	// should skip the entry and move on.
	ErrStaleStateTransition = errors.New("stale state transition")

	// ErrTypeNotRegistered indicates the type registry has no factory for an
	// event type name. Reported per entry, never aborts a batch.
	ErrTypeNotRegistered = errors.New("event type not registered")

	// ErrFatalStartup indicates the publisher could not reach a working state
	// within its configured bound (e.g., the broker never became ready).
	ErrFatalStartup = errors.New("fatal startup failure")
)

// transientError marks an error as a transient infrastructure fault that is
// safe to retry (connection loss, lock timeout). Business errors must never
// carry this marker.
type transientError struct {
	err error
}

func (t *transientError) Error() string { return t.err.Error() }

func (t *transientError) Unwrap() error { return t.err }

// Transient wraps err as a retryable transient infrastructure fault.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether any error in err's tree is marked transient.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// New creates a new error with the given message.
// This is a convenience wrapper around errors.New for consistency.
func New(message string) error {
	return errors.New(message)
}

// Wrap wraps an error with additional context while preserving the error chain.
// Use this to add context at each layer without losing the original error type.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's tree matches target.
// This is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
// This is a convenience wrapper around errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors.
// This is a convenience wrapper around errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
