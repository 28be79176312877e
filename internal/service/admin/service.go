package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirinyoku/ticket-reservation/internal/domain"
	"github.com/kirinyoku/ticket-reservation/internal/repository"
	"github.com/kirinyoku/ticket-reservation/internal/uow"
)

type EventInvalidator interface {
	InvalidateEvent(ctx context.Context, eventID int64) error
}

type EventNotifier interface {
	PublishEventChanged(ctx context.Context, eventID int64) error
}

type CreateEventInput struct {
	Name       string
	Date       time.Time
	Venue      string
	TotalSeats int
}

// UpdateEventInput replaces the descriptive fields of an event. Seat counts
// cannot be changed after creation.
type UpdateEventInput struct {
	Name  string
	Date  time.Time
	Venue string
}

type Service struct {
	uow      *uow.UoW
	cache    EventInvalidator
	notifier EventNotifier
	log      *slog.Logger
}

// New returns an event management service. cache and notifier may be nil.
func New(store repository.Store, cache EventInvalidator, notifier EventNotifier, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		uow:      uow.NewUoW(store),
		cache:    cache,
		notifier: notifier,
		log:      log,
	}
}

// CreateEvent stores a new event with its whole inventory available.
//
// Parameters:
//   - ctx: request-scoped context.
//   - in: descriptive fields and the fixed seat count.
//
// Returns:
//   - *domain.Event: the stored event with its ID assigned.
//   - error: admin.ErrInvalidArgument if the name is empty or the seat count
//     is negative.
func (s *Service) CreateEvent(ctx context.Context, in CreateEventInput) (*domain.Event, error) {
	const op = "service.admin.CreateEvent"

	event, err := domain.NewEvent(in.Name, in.Date, in.Venue, in.TotalSeats)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}

	err = s.uow.Do(ctx, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		e := *event
		if err := tx.CreateEvent(ctx, &e); err != nil {
			return err
		}
		*event = e

		after(func(ctx context.Context) { s.eventChanged(ctx, e.ID) })
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}

	return event, nil
}

// UpdateEvent replaces the name, date and venue of an event under its lock.
func (s *Service) UpdateEvent(ctx context.Context, id int64, in UpdateEventInput) (*domain.Event, error) {
	const op = "service.admin.UpdateEvent"

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%s: %w: name is required", op, ErrInvalidArgument)
	}

	var updated domain.Event

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		e, err := tx.GetEventForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrEventNotFound
			}
			return err
		}

		e.Name = name
		e.Date = in.Date.UTC()
		e.Venue = strings.TrimSpace(in.Venue)

		if err := tx.SaveEvent(ctx, e); err != nil {
			return err
		}
		updated = *e

		after(func(ctx context.Context) { s.eventChanged(ctx, id) })
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}

	return &updated, nil
}

// DeleteEvent removes an event. Its bookings stay in the ledger and can
// still be cancelled.
func (s *Service) DeleteEvent(ctx context.Context, id int64) error {
	const op = "service.admin.DeleteEvent"

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		if err := tx.DeleteEvent(ctx, id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrEventNotFound
			}
			return err
		}

		after(func(ctx context.Context) { s.eventChanged(ctx, id) })
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}

	return nil
}

func (s *Service) eventChanged(ctx context.Context, eventID int64) {
	if s.cache != nil {
		if err := s.cache.InvalidateEvent(ctx, eventID); err != nil {
			s.log.WarnContext(ctx, "invalidate event cache", slog.Int64("event_id", eventID), slog.Any("err", err))
		}
	}
	if s.notifier != nil {
		if err := s.notifier.PublishEventChanged(ctx, eventID); err != nil {
			s.log.WarnContext(ctx, "publish event changed", slog.Int64("event_id", eventID), slog.Any("err", err))
		}
	}
}
