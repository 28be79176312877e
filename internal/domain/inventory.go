package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidTicketCount = errors.New("ticket count must be greater than zero")
	ErrInsufficientSeats  = errors.New("insufficient seats")
	ErrSeatOverflow       = errors.New("released seats exceed total seats")
	ErrInvalidEvent       = errors.New("invalid event")
)

// NewEvent validates the descriptive fields and returns an event whose
// whole inventory is available.
func NewEvent(name string, date time.Time, venue string, totalSeats int) (*Event, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.Join(ErrInvalidEvent, errors.New("name is required"))
	}
	if totalSeats < 0 {
		return nil, errors.Join(ErrInvalidEvent, errors.New("total seats must not be negative"))
	}

	return &Event{
		Name:           name,
		Date:           date.UTC(),
		Venue:          strings.TrimSpace(venue),
		TotalSeats:     totalSeats,
		AvailableSeats: totalSeats,
	}, nil
}

// Reserve takes n seats out of the available pool. The event is left
// untouched on error.
func (e *Event) Reserve(n int) error {
	if n <= 0 {
		return ErrInvalidTicketCount
	}
	if n > e.AvailableSeats {
		return ErrInsufficientSeats
	}
	e.AvailableSeats -= n
	return nil
}

// Release returns n seats to the available pool.
func (e *Event) Release(n int) error {
	if n <= 0 {
		return ErrInvalidTicketCount
	}
	if e.AvailableSeats+n > e.TotalSeats {
		return ErrSeatOverflow
	}
	e.AvailableSeats += n
	return nil
}

// Booked is the number of seats held by active bookings.
func (e *Event) Booked() int {
	return e.TotalSeats - e.AvailableSeats
}

func (e *Event) Availability() Availability {
	return Availability{
		EventID:   e.ID,
		Total:     e.TotalSeats,
		Available: e.AvailableSeats,
		Booked:    e.Booked(),
	}
}
