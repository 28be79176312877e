package memoryrepo

import (
	"context"
	"fmt"

	"github.com/kirinyoku/ticket-reservation/internal/domain"
	"github.com/kirinyoku/ticket-reservation/internal/repository"
)

type tx struct {
	s      *Store
	locked map[int64]struct{}

	events        map[int64]domain.Event
	deletedEvents map[int64]struct{}
	bookings      map[int64]domain.Booking
	deletedBooks  map[int64]struct{}
}

func newTx(s *Store) *tx {
	return &tx{
		s:             s,
		locked:        make(map[int64]struct{}),
		events:        make(map[int64]domain.Event),
		deletedEvents: make(map[int64]struct{}),
		bookings:      make(map[int64]domain.Booking),
		deletedBooks:  make(map[int64]struct{}),
	}
}

func (t *tx) lock(ctx context.Context, eventID int64) error {
	if _, ok := t.locked[eventID]; ok {
		return nil
	}
	if err := t.s.locks.acquire(ctx, eventID); err != nil {
		return err
	}
	t.locked[eventID] = struct{}{}
	return nil
}

func (t *tx) releaseLocks() {
	for id := range t.locked {
		t.s.locks.release(id)
	}
	clear(t.locked)
}

func (t *tx) event(id int64) (domain.Event, bool) {
	if _, gone := t.deletedEvents[id]; gone {
		return domain.Event{}, false
	}
	if e, ok := t.events[id]; ok {
		return e, true
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	e, ok := t.s.events[id]
	return e, ok
}

func (t *tx) booking(id int64) (domain.Booking, bool) {
	if _, gone := t.deletedBooks[id]; gone {
		return domain.Booking{}, false
	}
	if b, ok := t.bookings[id]; ok {
		return b, true
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	b, ok := t.s.bookings[id]
	return b, ok
}

func (t *tx) GetEventForUpdate(ctx context.Context, id int64) (*domain.Event, error) {
	const op = "memoryrepo.tx.GetEventForUpdate"

	if err := t.lock(ctx, id); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	e, ok := t.event(id)
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return &e, nil
}

func (t *tx) CreateEvent(ctx context.Context, e *domain.Event) error {
	const op = "memoryrepo.tx.CreateEvent"

	id := t.s.nextEvent.Add(1)
	if err := t.lock(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	e.ID = id
	t.events[id] = *e

	return nil
}

func (t *tx) SaveEvent(_ context.Context, e *domain.Event) error {
	const op = "memoryrepo.tx.SaveEvent"

	if _, ok := t.locked[e.ID]; !ok {
		return fmt.Errorf("%s: event %d is not locked by this transaction", op, e.ID)
	}
	if _, ok := t.event(e.ID); !ok {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	t.events[e.ID] = *e

	return nil
}

func (t *tx) DeleteEvent(ctx context.Context, id int64) error {
	const op = "memoryrepo.tx.DeleteEvent"

	if err := t.lock(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, ok := t.event(id); !ok {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	delete(t.events, id)
	t.deletedEvents[id] = struct{}{}

	return nil
}

// GetBookingForUpdate locks the event the booking belongs to, then re-reads
// the booking: a concurrent transaction may have deleted it while this one
// waited for the lock.
func (t *tx) GetBookingForUpdate(ctx context.Context, id int64) (*domain.Booking, error) {
	const op = "memoryrepo.tx.GetBookingForUpdate"

	b, ok := t.booking(id)
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	if err := t.lock(ctx, b.EventID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	b, ok = t.booking(id)
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return &b, nil
}

func (t *tx) SaveBooking(_ context.Context, b *domain.Booking) error {
	const op = "memoryrepo.tx.SaveBooking"

	if _, ok := t.locked[b.EventID]; !ok {
		return fmt.Errorf("%s: event %d is not locked by this transaction", op, b.EventID)
	}

	for _, pending := range t.bookings {
		if pending.Reference == b.Reference {
			return fmt.Errorf("%s: %w", op, repository.ErrConflict)
		}
	}

	t.s.mu.RLock()
	_, dup := t.s.refs[b.Reference]
	t.s.mu.RUnlock()
	if dup {
		return fmt.Errorf("%s: %w", op, repository.ErrConflict)
	}

	b.ID = t.s.nextBooking.Add(1)
	t.bookings[b.ID] = *b

	return nil
}

func (t *tx) DeleteBooking(_ context.Context, id int64) error {
	const op = "memoryrepo.tx.DeleteBooking"

	b, ok := t.booking(id)
	if !ok {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}
	if _, ok := t.locked[b.EventID]; !ok {
		return fmt.Errorf("%s: event %d is not locked by this transaction", op, b.EventID)
	}

	delete(t.bookings, id)
	t.deletedBooks[id] = struct{}{}

	return nil
}

func (t *tx) commit() error {
	s := t.s

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range t.bookings {
		if _, dup := s.refs[b.Reference]; dup {
			return repository.ErrConflict
		}
	}

	for id := range t.deletedEvents {
		delete(s.events, id)
	}
	for id, e := range t.events {
		s.events[id] = e
	}
	for id := range t.deletedBooks {
		if b, ok := s.bookings[id]; ok {
			delete(s.refs, b.Reference)
			delete(s.bookings, id)
		}
	}
	for id, b := range t.bookings {
		s.bookings[id] = b
		s.refs[b.Reference] = id
	}

	return nil
}
