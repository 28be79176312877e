package domain

import (
	"time"
)

// Event is the seat inventory of a bookable event.
type Event struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Date           time.Time `json:"date"`
	Venue          string    `json:"venue"`
	TotalSeats     int       `json:"total_seats"`
	AvailableSeats int       `json:"available_seats"`
}

// Booking is a reservation of TicketCount seats against one event.
type Booking struct {
	ID          int64     `json:"id"`
	EventID     int64     `json:"event_id"`
	EventName   string    `json:"event_name"`
	UserName    string    `json:"user_name"`
	TicketCount int       `json:"ticket_count"`
	Reference   string    `json:"booking_reference"`
	CreatedAt   time.Time `json:"created_at"`
}

type Availability struct {
	EventID   int64 `json:"event_id"`
	Total     int   `json:"total"`
	Available int   `json:"available"`
	Booked    int   `json:"booked"`
}
