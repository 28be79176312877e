package postgresrepo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/ticket-reservation/internal/domain"
	"github.com/kirinyoku/ticket-reservation/internal/repository"
)

type BookingRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *BookingRepo) With(db DB) *BookingRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *BookingRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const bookingColumns = `id, event_id, event_name, user_name, ticket_count, booking_reference, created_at`

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	if err := row.Scan(
		&b.ID,
		&b.EventID,
		&b.EventName,
		&b.UserName,
		&b.TicketCount,
		&b.Reference,
		&b.CreatedAt,
	); err != nil {
		return nil, err
	}

	return &b, nil
}

// Get retrieves a booking by its ID.
//
// Returns:
//   - *domain.Booking: the booking when found.
//   - error: repository.ErrNotFound if the booking is not found.
func (r *BookingRepo) Get(ctx context.Context, id int64) (*domain.Booking, error) {
	const op = "postgresrepo.BookingRepo.Get"

	b, err := scanBooking(r.handle().QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return b, nil
}

// GetForUpdate reads a booking and locks its row until the surrounding
// transaction ends. A concurrent cancel of the same booking waits here and
// then sees no row.
func (r *BookingRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Booking, error) {
	const op = "postgresrepo.BookingRepo.GetForUpdate"

	b, err := scanBooking(r.handle().QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return b, nil
}

func (r *BookingRepo) ListByUser(ctx context.Context, userName string) ([]domain.Booking, error) {
	const op = "postgresrepo.BookingRepo.ListByUser"

	return r.list(ctx, op,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE user_name = $1
		 ORDER BY id`,
		userName,
	)
}

func (r *BookingRepo) ListAll(ctx context.Context) ([]domain.Booking, error) {
	const op = "postgresrepo.BookingRepo.ListAll"

	return r.list(ctx, op, `SELECT `+bookingColumns+` FROM bookings ORDER BY id`)
}

func (r *BookingRepo) ListByEvent(ctx context.Context, eventID int64) ([]domain.Booking, error) {
	const op = "postgresrepo.BookingRepo.ListByEvent"

	return r.list(ctx, op,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE event_id = $1
		 ORDER BY id`,
		eventID,
	)
}

func (r *BookingRepo) list(ctx context.Context, op, sql string, args ...any) ([]domain.Booking, error) {
	rows, err := r.handle().Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	out := make([]domain.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// Create inserts a booking and assigns its ID.
//
// Returns:
//   - error: repository.ErrConflict if the booking reference is already taken.
func (r *BookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	const op = "postgresrepo.BookingRepo.Create"

	if err := r.handle().QueryRow(ctx,
		`INSERT INTO bookings(event_id, event_name, user_name, ticket_count, booking_reference, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		b.EventID, b.EventName, b.UserName, b.TicketCount, b.Reference, b.CreatedAt,
	).Scan(&b.ID); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *BookingRepo) Delete(ctx context.Context, id int64) error {
	const op = "postgresrepo.BookingRepo.Delete"

	tag, err := r.handle().Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, repository.ErrNotFound)
	}

	return nil
}
