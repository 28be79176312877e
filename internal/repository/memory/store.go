package memoryrepo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/kirinyoku/ticket-reservation/internal/domain"
	"github.com/kirinyoku/ticket-reservation/internal/repository"
)

// Store keeps events and bookings in process memory. Transactions buffer
// their writes and apply them at commit, and hold a per-event lock from the
// first ForUpdate read until commit or rollback.
type Store struct {
	mu       sync.RWMutex
	events   map[int64]domain.Event
	bookings map[int64]domain.Booking
	refs     map[string]int64

	locks       *eventLocks
	nextEvent   atomic.Int64
	nextBooking atomic.Int64
}

func NewStore() *Store {
	return &Store{
		events:   make(map[int64]domain.Event),
		bookings: make(map[int64]domain.Booking),
		refs:     make(map[string]int64),
		locks:    newEventLocks(),
	}
}

func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	const op = "memoryrepo.Store.RunTx"

	t := newTx(s)
	defer t.releaseLocks()

	if err := fn(ctx, t); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := t.commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	return nil
}

func (s *Store) GetEvent(_ context.Context, id int64) (*domain.Event, error) {
	const op = "memoryrepo.Store.GetEvent"

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return &e, nil
}

func (s *Store) ListEvents(_ context.Context, limit, offset int) ([]domain.Event, error) {
	s.mu.RLock()
	out := make([]domain.Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID < out[j].ID
		}
		return out[i].Date.Before(out[j].Date)
	})

	if offset >= len(out) {
		return []domain.Event{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}

	return out, nil
}

func (s *Store) GetBooking(_ context.Context, id int64) (*domain.Booking, error) {
	const op = "memoryrepo.Store.GetBooking"

	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return &b, nil
}

func (s *Store) ListBookingsByUser(_ context.Context, userName string) ([]domain.Booking, error) {
	return s.filterBookings(func(b domain.Booking) bool { return b.UserName == userName }), nil
}

func (s *Store) ListAllBookings(_ context.Context) ([]domain.Booking, error) {
	return s.filterBookings(func(domain.Booking) bool { return true }), nil
}

// ListBookingsByEvent is not part of repository.Store; it lets callers
// audit the ledger of one event.
func (s *Store) ListBookingsByEvent(_ context.Context, eventID int64) ([]domain.Booking, error) {
	return s.filterBookings(func(b domain.Booking) bool { return b.EventID == eventID }), nil
}

func (s *Store) filterBookings(keep func(domain.Booking) bool) []domain.Booking {
	s.mu.RLock()
	out := make([]domain.Booking, 0)
	for _, b := range s.bookings {
		if keep(b) {
			out = append(out, b)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}
