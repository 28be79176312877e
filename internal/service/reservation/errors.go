package reservation

import (
	"errors"
	"fmt"

	"github.com/kirinyoku/ticket-reservation/internal/domain"
	"github.com/kirinyoku/ticket-reservation/internal/repository"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrEventNotFound        = fmt.Errorf("event %w", ErrNotFound)
	ErrBookingNotFound      = fmt.Errorf("booking %w", ErrNotFound)
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrStorageFailure       = errors.New("storage failure")
)

// InsufficientCapacityError reports a booking that asked for more seats than
// the event had left when its lock was taken.
type InsufficientCapacityError struct {
	EventID   int64
	Requested int
	Available int
}

func (e InsufficientCapacityError) Error() string {
	return fmt.Sprintf(
		"insufficient capacity for event %d: requested %d, available %d",
		e.EventID, e.Requested, e.Available,
	)
}

func (e InsufficientCapacityError) Is(target error) bool {
	return target == ErrInsufficientCapacity
}

// classify leaves errors of the service taxonomy untouched and reports
// everything else, including context cancellation while waiting for a lock,
// as a storage failure wrapping the cause.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInsufficientCapacity),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrStorageFailure):
		return err
	case errors.Is(err, domain.ErrInvalidTicketCount):
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	default:
		return fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
}

func notFound(err, sentinel error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return sentinel
	}
	return err
}
