package store

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyObserving is returned by Observer.Observe on an active observer.
	ErrAlreadyObserving = errors.New("observer already active")

	// ErrObserverTerminated is returned by Observer.Observe after Close or a
	// delivered error.
	ErrObserverTerminated = errors.New("observer terminated")
)

// PersistenceError reports a failed durable read or write.
//
// Op names the store operation ("fetch", "save", "remove", "seed", "count",
// "defaults"). Err is the underlying driver or transaction error.
type PersistenceError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ObservationError reports that an observer could not recompute its query.
// It is delivered once through a ChangeError, after which the observer is
// terminated.
type ObservationError struct {
	Err error
}

// Error implements the error interface.
func (e *ObservationError) Error() string {
	return fmt.Sprintf("observation: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ObservationError) Unwrap() error {
	return e.Err
}

// IsPersistenceError returns true if err is or wraps a *PersistenceError.
// Uses errors.As to handle wrapped errors.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// IsObservationError returns true if err is or wraps an *ObservationError.
func IsObservationError(err error) bool {
	var oe *ObservationError
	return errors.As(err, &oe)
}
