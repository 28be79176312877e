package query

import (
	"errors"
	"fmt"

	"github.com/kirinyoku/ticket-reservation/internal/repository"
	"github.com/kirinyoku/ticket-reservation/internal/service/reservation"
)

var (
	ErrEventNotFound  = reservation.ErrEventNotFound
	ErrStorageFailure = reservation.ErrStorageFailure
)

func classify(err error) error {
	switch {
	case errors.Is(err, ErrEventNotFound):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return ErrEventNotFound
	default:
		return fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
}
