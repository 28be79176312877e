package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kirinyoku/ticket-reservation/internal/clock"
	"github.com/kirinyoku/ticket-reservation/internal/domain"
	"github.com/kirinyoku/ticket-reservation/internal/metrics"
	"github.com/kirinyoku/ticket-reservation/internal/repository"
	"github.com/kirinyoku/ticket-reservation/internal/uow"
)

type Config struct {
	// OpTimeout bounds Book and Cancel, lock waits and retries included.
	// Zero means the caller's context alone decides.
	OpTimeout time.Duration
}

// EventInvalidator drops cached views of an event.
type EventInvalidator interface {
	InvalidateEvent(ctx context.Context, eventID int64) error
}

// EventNotifier tells other instances that an event's inventory changed.
type EventNotifier interface {
	PublishEventChanged(ctx context.Context, eventID int64) error
}

// BookingPublisher emits booking lifecycle messages.
type BookingPublisher interface {
	PublishBookingCreated(ctx context.Context, b domain.Booking) error
	PublishBookingCancelled(ctx context.Context, b domain.Booking) error
}

type Option func(*Service)

func WithCache(c EventInvalidator) Option { return func(s *Service) { s.cache = c } }

func WithNotifier(n EventNotifier) Option { return func(s *Service) { s.notifier = n } }

func WithPublisher(p BookingPublisher) Option { return func(s *Service) { s.publisher = p } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithTracer(t trace.Tracer) Option { return func(s *Service) { s.tracer = t } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }

func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

// WithReferences replaces the booking reference generator.
func WithReferences(gen func() string) Option { return func(s *Service) { s.newReference = gen } }

// Service is the only writer of an event's available seats. Every Book and
// Cancel re-reads the event under its lock inside one unit of work, so the
// seat counter and the booking ledger change together or not at all.
type Service struct {
	store repository.Store
	uow   *uow.UoW
	cfg   Config

	cache     EventInvalidator
	notifier  EventNotifier
	publisher BookingPublisher
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	log       *slog.Logger
	clock     clock.Clock

	newReference func() string
}

func New(store repository.Store, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:        store,
		uow:          uow.NewUoW(store),
		cfg:          cfg,
		tracer:       otel.Tracer("ticket-reservation/reservation"),
		log:          slog.Default(),
		clock:        clock.NewSystem(),
		newReference: NewReference,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// NewReference returns a booking reference of the form BK-XXXX-XXXX-XXXX.
func NewReference() string {
	h := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("BK-%s-%s-%s", h[0:4], h[4:8], h[8:12])
}

// Book takes ticketCount seats of an event for userName.
//
// Parameters:
//   - ctx: request-scoped context.
//   - eventID: the event to book.
//   - userName: the holder of the booking.
//   - ticketCount: number of seats, must be positive.
//
// Returns:
//   - *domain.Booking: the stored booking with ID, reference and creation
//     time assigned.
//   - error: reservation.ErrInvalidArgument for a bad request.
//   - error: reservation.ErrEventNotFound if the event does not exist.
//   - error: InsufficientCapacityError (is ErrInsufficientCapacity) if
//     fewer seats are left; nothing is written.
//   - error: reservation.ErrStorageFailure if the transaction could not
//     complete; nothing is written.
func (s *Service) Book(
	ctx context.Context,
	eventID int64,
	userName string,
	ticketCount int,
) (_ *domain.Booking, err error) {
	const op = "service.reservation.Book"

	ctx, span := s.tracer.Start(ctx, "reservation.Book", trace.WithAttributes(
		attribute.Int64("event.id", eventID),
		attribute.Int("booking.ticket_count", ticketCount),
	))
	defer s.finish(span, "book", s.clock.Now(), &err)

	userName = strings.TrimSpace(userName)
	if ticketCount <= 0 {
		return nil, fmt.Errorf("%s: %w: ticket count must be positive", op, ErrInvalidArgument)
	}
	if userName == "" {
		return nil, fmt.Errorf("%s: %w: user name is required", op, ErrInvalidArgument)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var booking domain.Booking

	err = s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Tx,
		after func(uow.AfterCommit),
	) error {
		event, err := tx.GetEventForUpdate(ctx, eventID)
		if err != nil {
			return notFound(err, ErrEventNotFound)
		}

		if err := event.Reserve(ticketCount); err != nil {
			if errors.Is(err, domain.ErrInsufficientSeats) {
				return InsufficientCapacityError{
					EventID:   eventID,
					Requested: ticketCount,
					Available: event.AvailableSeats,
				}
			}
			return err
		}

		if err := tx.SaveEvent(ctx, event); err != nil {
			return err
		}

		booking = domain.Booking{
			EventID:     eventID,
			EventName:   event.Name,
			UserName:    userName,
			TicketCount: ticketCount,
			Reference:   s.newReference(),
			CreatedAt:   s.clock.Now(),
		}
		if err := tx.SaveBooking(ctx, &booking); err != nil {
			return err
		}

		created := booking
		after(func(ctx context.Context) {
			s.metrics.SeatsBooked(created.TicketCount)
			s.eventChanged(ctx, eventID)
			if s.publisher != nil {
				if err := s.publisher.PublishBookingCreated(ctx, created); err != nil {
					s.log.WarnContext(ctx, "publish booking created", slog.Int64("booking_id", created.ID), slog.Any("err", err))
				}
			}
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}

	span.SetAttributes(attribute.Int64("booking.id", booking.ID))

	return &booking, nil
}

// Cancel deletes a booking and returns its seats to the event. When the
// event itself was deleted the booking is removed without restoring seats.
// A second Cancel of the same booking fails with ErrBookingNotFound.
func (s *Service) Cancel(ctx context.Context, bookingID int64) (err error) {
	const op = "service.reservation.Cancel"

	ctx, span := s.tracer.Start(ctx, "reservation.Cancel", trace.WithAttributes(
		attribute.Int64("booking.id", bookingID),
	))
	defer s.finish(span, "cancel", s.clock.Now(), &err)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err = s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Tx,
		after func(uow.AfterCommit),
	) error {
		booking, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return notFound(err, ErrBookingNotFound)
		}

		restored := false

		event, err := tx.GetEventForUpdate(ctx, booking.EventID)
		switch {
		case err == nil:
			if err := event.Release(booking.TicketCount); err != nil {
				return err
			}
			if err := tx.SaveEvent(ctx, event); err != nil {
				return err
			}
			restored = true
		case errors.Is(err, repository.ErrNotFound):
		default:
			return err
		}

		if err := tx.DeleteBooking(ctx, bookingID); err != nil {
			return notFound(err, ErrBookingNotFound)
		}

		cancelled := *booking
		after(func(ctx context.Context) {
			if restored {
				s.metrics.SeatsReleased(cancelled.TicketCount)
				s.eventChanged(ctx, cancelled.EventID)
			} else {
				s.log.InfoContext(ctx, "cancelled booking of deleted event",
					slog.Int64("booking_id", cancelled.ID),
					slog.Int64("event_id", cancelled.EventID),
				)
			}
			if s.publisher != nil {
				if err := s.publisher.PublishBookingCancelled(ctx, cancelled); err != nil {
					s.log.WarnContext(ctx, "publish booking cancelled", slog.Int64("booking_id", cancelled.ID), slog.Any("err", err))
				}
			}
		})

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}

	return nil
}

func (s *Service) GetByID(ctx context.Context, bookingID int64) (*domain.Booking, error) {
	const op = "service.reservation.GetByID"

	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(notFound(err, ErrBookingNotFound)))
	}

	return b, nil
}

// ListForUser returns the bookings of userName in creation order.
func (s *Service) ListForUser(ctx context.Context, userName string) ([]domain.Booking, error) {
	const op = "service.reservation.ListForUser"

	userName = strings.TrimSpace(userName)
	if userName == "" {
		return nil, fmt.Errorf("%s: %w: user name is required", op, ErrInvalidArgument)
	}

	out, err := s.store.ListBookingsByUser(ctx, userName)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}

	return out, nil
}

func (s *Service) ListAll(ctx context.Context) ([]domain.Booking, error) {
	const op = "service.reservation.ListAll"

	out, err := s.store.ListAllBookings(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}

	return out, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.OpTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.OpTimeout)
}

// eventChanged runs after commit; failures only leave a cached view stale
// until its TTL, so they are logged.
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

func (s *Service) finish(span trace.Span, op string, started time.Time, errp *error) {
	err := *errp

	s.metrics.ObserveOp(op, outcome(err), s.clock.Now().Sub(started))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, ErrInsufficientCapacity):
		return metrics.OutcomeInsufficientCapacity
	case errors.Is(err, ErrInvalidArgument):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}
