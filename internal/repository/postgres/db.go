package postgresrepo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/ticket-reservation/internal/domain"
	"github.com/kirinyoku/ticket-reservation/internal/repository"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Store struct {
	pool   *pgxpool.Pool
	txOpts pgx.TxOptions
}

// NewStore returns a Store whose transactions run at READ COMMITTED. Every
// check-and-write takes a row lock (SELECT ... FOR UPDATE) on the event it
// touches, and a blocked FOR UPDATE re-reads the latest committed row once
// the lock is granted, so writers on one event are serialized without the
// retry storms SERIALIZABLE produces under contention.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
		txOpts: pgx.TxOptions{
			IsoLevel:   pgx.ReadCommitted,
			AccessMode: pgx.ReadWrite,
		},
	}
}

func (s *Store) RunTx(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Tx) error,
) error {
	const op = "postgresrepo.Store.RunTx"

	tx, err := s.pool.BeginTx(ctx, s.txOpts)
	if err != nil {
		return wrapDBErr(op, err)
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, s.txRepos(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapDBErr(op+": commit", err)
	}

	return nil
}

func (s *Store) Events() *EventRepo     { return &EventRepo{pool: s.pool} }
func (s *Store) Bookings() *BookingRepo { return &BookingRepo{pool: s.pool} }

func (s *Store) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	return s.Events().Get(ctx, id)
}

func (s *Store) ListEvents(ctx context.Context, limit, offset int) ([]domain.Event, error) {
	return s.Events().List(ctx, limit, offset)
}

func (s *Store) GetBooking(ctx context.Context, id int64) (*domain.Booking, error) {
	return s.Bookings().Get(ctx, id)
}

func (s *Store) ListBookingsByUser(ctx context.Context, userName string) ([]domain.Booking, error) {
	return s.Bookings().ListByUser(ctx, userName)
}

func (s *Store) ListAllBookings(ctx context.Context) ([]domain.Booking, error) {
	return s.Bookings().ListAll(ctx)
}

// txRepos adapts the repositories bound to one pgx.Tx to repository.Tx.
type txRepos struct {
	events   *EventRepo
	bookings *BookingRepo
}

func (s *Store) txRepos(tx pgx.Tx) *txRepos {
	return &txRepos{
		events:   s.Events().With(tx),
		bookings: s.Bookings().With(tx),
	}
}

func (t *txRepos) GetEventForUpdate(ctx context.Context, id int64) (*domain.Event, error) {
	return t.events.GetForUpdate(ctx, id)
}

func (t *txRepos) CreateEvent(ctx context.Context, e *domain.Event) error {
	return t.events.Create(ctx, e)
}

func (t *txRepos) SaveEvent(ctx context.Context, e *domain.Event) error {
	return t.events.Save(ctx, e)
}

func (t *txRepos) DeleteEvent(ctx context.Context, id int64) error {
	return t.events.Delete(ctx, id)
}

func (t *txRepos) GetBookingForUpdate(ctx context.Context, id int64) (*domain.Booking, error) {
	return t.bookings.GetForUpdate(ctx, id)
}

func (t *txRepos) SaveBooking(ctx context.Context, b *domain.Booking) error {
	return t.bookings.Create(ctx, b)
}

func (t *txRepos) DeleteBooking(ctx context.Context, id int64) error {
	return t.bookings.Delete(ctx, id)
}
