package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a unique constraint violation. The only unique
	// column written by the services is the booking reference, which is
	// regenerated on every attempt, so a conflict is retried.
	ErrConflict = errors.New("conflict")
	// ErrSerialization reports a serialization failure or deadlock that
	// rolled the transaction back.
	ErrSerialization = errors.New("serialization failure")
)

// IsRetryable reports whether re-running the whole transaction from fresh
// reads may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSerialization) || errors.Is(err, ErrConflict)
}
