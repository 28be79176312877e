package admin

import (
	"errors"
	"fmt"

	"github.com/kirinyoku/ticket-reservation/internal/domain"
	"github.com/kirinyoku/ticket-reservation/internal/service/reservation"
)

// Event management reports errors in the reservation taxonomy so the
// transport maps them the same way.
var (
	ErrEventNotFound   = reservation.ErrEventNotFound
	ErrInvalidArgument = reservation.ErrInvalidArgument
	ErrStorageFailure  = reservation.ErrStorageFailure
)

func classify(err error) error {
	switch {
	case errors.Is(err, ErrEventNotFound), errors.Is(err, ErrInvalidArgument):
		return err
	case errors.Is(err, domain.ErrInvalidEvent):
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	default:
		return fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
}
