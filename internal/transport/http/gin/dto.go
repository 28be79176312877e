package httpgin

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

type BookRequest struct {
	EventID     int64  `json:"event_id" binding:"required,gt=0"`
	UserName    string `json:"user_name" binding:"required"`
	TicketCount int    `json:"ticket_count" binding:"required"`
}

// fingerprint identifies the booking a request asks for, after the same
// normalization the booking service applies.
func (r BookRequest) fingerprint() string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%d\x00%s\x00%d", r.EventID, strings.TrimSpace(r.UserName), r.TicketCount))
	return hex.EncodeToString(sum[:])
}

type CreateEventRequest struct {
	Name       string `json:"name" binding:"required"`
	Date       string `json:"date" binding:"required"`
	Venue      string `json:"venue"`
	TotalSeats *int   `json:"total_seats" binding:"required"`
}

type UpdateEventRequest struct {
	Name  string `json:"name" binding:"required"`
	Date  string `json:"date" binding:"required"`
	Venue string `json:"venue"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
