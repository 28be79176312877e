package postgresrepo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/ticket-reservation/internal/domain"
	"github.com/kirinyoku/ticket-reservation/internal/repository"
)

type EventRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *EventRepo) With(db DB) *EventRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *EventRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const eventColumns = `id, name, event_date, venue, total_seats, available_seats`

// Get retrieves an event by its ID.
//
// Returns:
//   - *domain.Event: the event when found.
//   - error: repository.ErrNotFound if the event is not found.
func (r *EventRepo) Get(ctx context.Context, id int64) (*domain.Event, error) {
	const op = "postgresrepo.EventRepo.Get"

	var e domain.Event
	err := r.handle().QueryRow(ctx,
		`SELECT `+eventColumns+`
		 FROM events WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.Name, &e.Date, &e.Venue, &e.TotalSeats, &e.AvailableSeats)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &e, nil
}

// GetForUpdate reads an event and locks its row until the surrounding
// transaction ends. Only meaningful on a repo bound to a transaction.
//
// Returns:
//   - *domain.Event: the event when found.
//   - error: repository.ErrNotFound if the event is not found.
func (r *EventRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Event, error) {
	const op = "postgresrepo.EventRepo.GetForUpdate"

	var e domain.Event
	err := r.handle().QueryRow(ctx,
		`SELECT `+eventColumns+`
		 FROM events WHERE id = $1
		 FOR UPDATE`,
		id,
	).Scan(&e.ID, &e.Name, &e.Date, &e.Venue, &e.TotalSeats, &e.AvailableSeats)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &e, nil
}

// List lists events ordered by date.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - limit, offset: pagination parameters.
func (r *EventRepo) List(ctx context.Context, limit, offset int) ([]domain.Event, error) {
	const op = "postgresrepo.EventRepo.List"

	rows, err := r.handle().Query(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 ORDER BY event_date, id
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	out := make([]domain.Event, 0)
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.Name, &e.Date, &e.Venue, &e.TotalSeats, &e.AvailableSeats); err != nil {
			return nil, wrapDBErr(op, err)
		}

		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *EventRepo) Create(ctx context.Context, e *domain.Event) error {
	const op = "postgresrepo.EventRepo.Create"

	if err := r.handle().QueryRow(ctx,
		`INSERT INTO events(name, event_date, venue, total_seats, available_seats)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		e.Name, e.Date, e.Venue, e.TotalSeats, e.AvailableSeats,
	).Scan(&e.ID); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// Save writes the mutable columns of an event. total_seats is never
// updated.
func (r *EventRepo) Save(ctx context.Context, e *domain.Event) error {
	const op = "postgresrepo.EventRepo.Save"

	tag, err := r.handle().Exec(ctx,
		`UPDATE events
		 SET name = $2, event_date = $3, venue = $4, available_seats = $5
		 WHERE id = $1`,
		e.ID, e.Name, e.Date, e.Venue, e.AvailableSeats,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, repository.ErrNotFound)
	}

	return nil
}

func (r *EventRepo) Delete(ctx context.Context, id int64) error {
	const op = "postgresrepo.EventRepo.Delete"

	tag, err := r.handle().Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, repository.ErrNotFound)
	}

	return nil
}
