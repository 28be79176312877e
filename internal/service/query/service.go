package query

import (
	"context"
	"fmt"
	"time"

	"github.com/kirinyoku/ticket-reservation/internal/domain"
	"github.com/kirinyoku/ticket-reservation/internal/repository"
	redisrepo "github.com/kirinyoku/ticket-reservation/internal/repository/redis"
)

type Config struct {
	EventSummaryTTL   time.Duration
	DefaultEventsPage int
	MaxEventsPage     int
}

type Service struct {
	store repository.Store
	cache *redisrepo.Cache
	cfg   Config
}

// New returns the read side of the service. cache may be nil, in which case
// every read goes to storage.
func New(store repository.Store, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.EventSummaryTTL <= 0 {
		cfg.EventSummaryTTL = 60 * time.Second
	}

	if cfg.DefaultEventsPage <= 0 {
		cfg.DefaultEventsPage = 50
	}

	if cfg.MaxEventsPage <= 0 {
		cfg.MaxEventsPage = 200
	}

	return &Service{
		store: store,
		cache: cache,
		cfg:   cfg,
	}
}

// GetEvent retrieves an event by its ID through the cache. The cached view
// is dropped after every commit that touches the event.
//
// Parameters:
//   - ctx: request-scoped context.
//   - id: ID of the event to retrieve.
//
// Returns:
//   - *domain.Event: the retrieved event.
//   - error: query.ErrEventNotFound if the event is not found.
func (s *Service) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	const op = "service.query.GetEvent"

	event, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyEventSummary(id),
		s.cfg.EventSummaryTTL,
		func(ctx context.Context) (domain.Event, error) {
			e, err := s.store.GetEvent(ctx, id)
			if err != nil {
				return domain.Event{}, err
			}

			return *e, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}

	return &event, nil
}

// ListEvents lists events ordered by date. limit falls back to the default
// page size when not positive and is capped at the maximum.
func (s *Service) ListEvents(ctx context.Context, limit, offset int) ([]domain.Event, error) {
	const op = "service.query.ListEvents"

	if limit <= 0 {
		limit = s.cfg.DefaultEventsPage
	}

	if limit > s.cfg.MaxEventsPage {
		limit = s.cfg.MaxEventsPage
	}

	if offset < 0 {
		offset = 0
	}

	events, err := s.store.ListEvents(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}

	return events, nil
}

// Availability reads the seat counts of an event straight from storage.
func (s *Service) Availability(ctx context.Context, eventID int64) (*domain.Availability, error) {
	const op = "service.query.Availability"

	e, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}

	a := e.Availability()

	return &a, nil
}
