package repository

import (
	"context"

	"github.com/kirinyoku/ticket-reservation/internal/domain"
)

// Store is the persistence collaborator of the services.
type Store interface {
	// RunTx runs fn inside one atomic unit. Writes made through tx become
	// visible to other callers only if fn returns nil and the commit
	// succeeds.
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetEvent(ctx context.Context, id int64) (*domain.Event, error)
	ListEvents(ctx context.Context, limit, offset int) ([]domain.Event, error)
	GetBooking(ctx context.Context, id int64) (*domain.Booking, error)
	ListBookingsByUser(ctx context.Context, userName string) ([]domain.Booking, error)
	ListAllBookings(ctx context.Context) ([]domain.Booking, error)
}

// Tx is the transactional view of a Store. The ForUpdate reads lock the
// event they resolve to until the transaction ends, so every check-and-write
// on one event is serialized while other events proceed independently.
type Tx interface {
	GetEventForUpdate(ctx context.Context, id int64) (*domain.Event, error)
	// CreateEvent assigns e.ID.
	CreateEvent(ctx context.Context, e *domain.Event) error
	SaveEvent(ctx context.Context, e *domain.Event) error
	DeleteEvent(ctx context.Context, id int64) error

	GetBookingForUpdate(ctx context.Context, id int64) (*domain.Booking, error)
	// SaveBooking inserts b and assigns b.ID.
	SaveBooking(ctx context.Context, b *domain.Booking) error
	DeleteBooking(ctx context.Context, id int64) error
}
