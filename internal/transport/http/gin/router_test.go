package httpgin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirinyoku/ticket-reservation/internal/domain"
	"github.com/kirinyoku/ticket-reservation/internal/metrics"
	memoryrepo "github.com/kirinyoku/ticket-reservation/internal/repository/memory"
	redisrepo "github.com/kirinyoku/ticket-reservation/internal/repository/redis"
	"github.com/kirinyoku/ticket-reservation/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memIdempotency struct {
	mu   sync.Mutex
	vals map[string]redisrepo.IdempotencyRecord
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{vals: make(map[string]redisrepo.IdempotencyRecord)}
}

func (m *memIdempotency) AcquireLock(_ context.Context, key, fingerprint string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vals[key]; ok {
		return false, nil
	}
	m.vals[key] = redisrepo.IdempotencyRecord{Fingerprint: fingerprint}
	return true, nil
}

func (m *memIdempotency) SaveResult(_ context.Context, key, fingerprint string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] = redisrepo.IdempotencyRecord{Fingerprint: fingerprint, Payload: payload, Completed: true}
	return nil
}

func (m *memIdempotency) Lookup(_ context.Context, key string) (redisrepo.IdempotencyRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.vals[key]
	return rec, ok, nil
}

func (m *memIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vals, key)
	return nil
}

type stubLimiter struct {
	decision redisrepo.Decision
	err      error
}

func (s stubLimiter) Allow(context.Context, string) (redisrepo.Decision, error) {
	return s.decision, s.err
}

type testServer struct {
	router *gin.Engine
	idem   *memIdempotency
	reg    *prometheus.Registry
}

func newTestServer(t *testing.T, limiter RateLimiter) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	svcs := service.NewServices(memoryrepo.NewStore(), service.Deps{Metrics: m, Logger: logger}, service.Config{})
	idem := newMemIdempotency()

	r := NewRouter(svcs, Deps{
		Idempotency: idem,
		Limiter:     limiter,
		Metrics:     m,
		Gatherer:    reg,
	}, logger)

	return &testServer{router: r, idem: idem, reg: reg}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func (s *testServer) createEvent(t *testing.T, seats int) domain.Event {
	t.Helper()

	w := s.do(t, http.MethodPost, "/admin/events", map[string]any{
		"name":        "Concert",
		"date":        "2025-07-01T20:00:00Z",
		"venue":       "Arena",
		"total_seats": seats,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create event: status %d body %s", w.Code, w.Body)
	}

	return decode[domain.Event](t, w)
}

func TestRouter_BookingScenario(t *testing.T) {
	s := newTestServer(t, nil)
	e := s.createEvent(t, 10)

	w := s.do(t, http.MethodPost, "/bookings", BookRequest{EventID: e.ID, UserName: "alice", TicketCount: 5})
	if w.Code != http.StatusCreated {
		t.Fatalf("book 5: status %d body %s", w.Code, w.Body)
	}
	booking := decode[domain.Booking](t, w)
	if booking.Reference == "" || booking.TicketCount != 5 {
		t.Fatalf("unexpected booking %+v", booking)
	}

	w = s.do(t, http.MethodPost, "/bookings", BookRequest{EventID: e.ID, UserName: "bob", TicketCount: 6})
	if w.Code != http.StatusConflict {
		t.Fatalf("book 6: expected 409, got %d body %s", w.Code, w.Body)
	}
	if resp := decode[ErrorResponse](t, w); resp.Code != "insufficient_capacity" {
		t.Fatalf("unexpected error code %q", resp.Code)
	}

	w = s.do(t, http.MethodGet, "/events/"+itoa(e.ID)+"/availability", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("availability: status %d", w.Code)
	}
	if a := decode[domain.Availability](t, w); a.Available != 5 || a.Booked != 5 {
		t.Fatalf("unexpected availability %+v", a)
	}

	w = s.do(t, http.MethodGet, "/users/alice/bookings", nil)
	if got := decode[[]domain.Booking](t, w); len(got) != 1 {
		t.Fatalf("expected 1 booking for alice, got %d", len(got))
	}

	w = s.do(t, http.MethodDelete, "/bookings/"+itoa(booking.ID), nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("cancel: status %d body %s", w.Code, w.Body)
	}

	w = s.do(t, http.MethodDelete, "/bookings/"+itoa(booking.ID), nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("second cancel: expected 404, got %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/events/"+itoa(e.ID), nil)
	if got := decode[domain.Event](t, w); got.AvailableSeats != 10 {
		t.Fatalf("expected 10 available after cancel, got %d", got.AvailableSeats)
	}

	w = s.do(t, http.MethodGet, "/bookings", nil)
	if got := decode[[]domain.Booking](t, w); len(got) != 0 {
		t.Fatalf("expected no bookings, got %d", len(got))
	}
}

func TestRouter_ErrorMapping(t *testing.T) {
	s := newTestServer(t, nil)
	e := s.createEvent(t, 1)

	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		wantCode int
		wantErr  string
	}{
		{name: "unknown event", method: http.MethodGet, path: "/events/999", wantCode: http.StatusNotFound, wantErr: "not_found"},
		{name: "bad event id", method: http.MethodGet, path: "/events/abc", wantCode: http.StatusBadRequest, wantErr: "invalid_argument"},
		{name: "unknown booking", method: http.MethodGet, path: "/bookings/77", wantCode: http.StatusNotFound, wantErr: "not_found"},
		{
			name: "book unknown event", method: http.MethodPost, path: "/bookings",
			body:     BookRequest{EventID: 999, UserName: "a", TicketCount: 1},
			wantCode: http.StatusNotFound, wantErr: "not_found",
		},
		{
			name: "negative tickets", method: http.MethodPost, path: "/bookings",
			body:     BookRequest{EventID: e.ID, UserName: "a", TicketCount: -1},
			wantCode: http.StatusBadRequest, wantErr: "invalid_argument",
		},
		{
			name: "missing user", method: http.MethodPost, path: "/bookings",
			body:     map[string]any{"event_id": e.ID, "ticket_count": 1},
			wantCode: http.StatusBadRequest, wantErr: "invalid_argument",
		},
		{
			name: "event without name", method: http.MethodPost, path: "/admin/events",
			body:     map[string]any{"name": " ", "date": "2025-07-01T20:00:00Z", "total_seats": 3},
			wantCode: http.StatusBadRequest, wantErr: "invalid_argument",
		},
		{
			name: "event with bad date", method: http.MethodPost, path: "/admin/events",
			body:     map[string]any{"name": "X", "date": "tomorrow", "total_seats": 3},
			wantCode: http.StatusBadRequest, wantErr: "invalid_argument",
		},
		{
			name: "update unknown event", method: http.MethodPut, path: "/admin/events/999",
			body:     UpdateEventRequest{Name: "X", Date: "2025-07-01T20:00:00Z"},
			wantCode: http.StatusNotFound, wantErr: "not_found",
		},
		{name: "delete unknown event", method: http.MethodDelete, path: "/admin/events/999", wantCode: http.StatusNotFound, wantErr: "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d body %s", tt.wantCode, w.Code, w.Body)
			}
			if resp := decode[ErrorResponse](t, w); resp.Code != tt.wantErr {
				t.Fatalf("expected code %q, got %q", tt.wantErr, resp.Code)
			}
		})
	}
}

func TestRouter_AdminUpdateAndDelete(t *testing.T) {
	s := newTestServer(t, nil)
	e := s.createEvent(t, 4)

	w := s.do(t, http.MethodPut, "/admin/events/"+itoa(e.ID), UpdateEventRequest{
		Name:  "Concert (late show)",
		Date:  "2025-07-01T23:00:00Z",
		Venue: "Club",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update: status %d body %s", w.Code, w.Body)
	}
	if got := decode[domain.Event](t, w); got.Name != "Concert (late show)" || got.TotalSeats != 4 {
		t.Fatalf("unexpected updated event %+v", got)
	}

	w = s.do(t, http.MethodGet, "/events", nil)
	if got := decode[[]domain.Event](t, w); len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}

	w = s.do(t, http.MethodDelete, "/admin/events/"+itoa(e.ID), nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/events/"+itoa(e.ID), nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected deleted event to be gone, got %d", w.Code)
	}
}

func TestRouter_IdempotentBooking(t *testing.T) {
	s := newTestServer(t, nil)
	e := s.createEvent(t, 5)

	req := BookRequest{EventID: e.ID, UserName: "alice", TicketCount: 2}

	first := s.do(t, http.MethodPost, "/bookings", req, "Idempotency-Key", "k-1")
	if first.Code != http.StatusCreated {
		t.Fatalf("first: status %d body %s", first.Code, first.Body)
	}
	second := s.do(t, http.MethodPost, "/bookings", req, "Idempotency-Key", "k-1")
	if second.Code != http.StatusCreated {
		t.Fatalf("replay: status %d body %s", second.Code, second.Body)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("expected replayed body %s, got %s", first.Body, second.Body)
	}

	w := s.do(t, http.MethodGet, "/events/"+itoa(e.ID)+"/availability", nil)
	if a := decode[domain.Availability](t, w); a.Available != 3 {
		t.Fatalf("expected seats taken once, got %+v", a)
	}

	s.idem.vals[redisrepo.KeyIdemBooking(e.ID, "alice", "k-2")] = redisrepo.IdempotencyRecord{Fingerprint: req.fingerprint()}
	w = s.do(t, http.MethodPost, "/bookings", req, "Idempotency-Key", "k-2")
	if w.Code != http.StatusConflict {
		t.Fatalf("in-flight key: expected 409, got %d", w.Code)
	}
	if resp := decode[ErrorResponse](t, w); resp.Code != "idempotency_in_progress" {
		t.Fatalf("unexpected code %q", resp.Code)
	}

	fail := BookRequest{EventID: e.ID, UserName: "alice", TicketCount: 50}
	w = s.do(t, http.MethodPost, "/bookings", fail, "Idempotency-Key", "k-3")
	if w.Code != http.StatusConflict {
		t.Fatalf("oversized booking: expected 409, got %d", w.Code)
	}
	if _, held := s.idem.vals[redisrepo.KeyIdemBooking(e.ID, "alice", "k-3")]; held {
		t.Fatalf("expected failed request to release its idempotency key")
	}
}

func TestRouter_IdempotencyKeyScopedToEventAndUser(t *testing.T) {
	s := newTestServer(t, nil)
	first := s.createEvent(t, 5)
	second := s.createEvent(t, 5)

	w := s.do(t, http.MethodPost, "/bookings",
		BookRequest{EventID: first.ID, UserName: "alice", TicketCount: 2}, "Idempotency-Key", "k")
	if w.Code != http.StatusCreated {
		t.Fatalf("alice: status %d body %s", w.Code, w.Body)
	}

	w = s.do(t, http.MethodPost, "/bookings",
		BookRequest{EventID: second.ID, UserName: "bob", TicketCount: 3}, "Idempotency-Key", "k")
	if w.Code != http.StatusCreated {
		t.Fatalf("bob: status %d body %s", w.Code, w.Body)
	}
	b := decode[domain.Booking](t, w)
	if b.EventID != second.ID || b.UserName != "bob" || b.TicketCount != 3 {
		t.Fatalf("expected bob's own booking, got %+v", b)
	}

	w = s.do(t, http.MethodGet, "/events/"+itoa(second.ID)+"/availability", nil)
	if a := decode[domain.Availability](t, w); a.Available != 2 || a.Booked != 3 {
		t.Fatalf("expected bob's seats to be taken, got %+v", a)
	}
}

func TestRouter_IdempotencyKeyReusedWithDifferentRequest(t *testing.T) {
	s := newTestServer(t, nil)
	e := s.createEvent(t, 10)

	w := s.do(t, http.MethodPost, "/bookings",
		BookRequest{EventID: e.ID, UserName: "alice", TicketCount: 2}, "Idempotency-Key", "k")
	if w.Code != http.StatusCreated {
		t.Fatalf("first: status %d body %s", w.Code, w.Body)
	}

	w = s.do(t, http.MethodPost, "/bookings",
		BookRequest{EventID: e.ID, UserName: "alice", TicketCount: 4}, "Idempotency-Key", "k")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d body %s", w.Code, w.Body)
	}
	if resp := decode[ErrorResponse](t, w); resp.Code != "idempotency_key_mismatch" {
		t.Fatalf("unexpected code %q", resp.Code)
	}

	w = s.do(t, http.MethodGet, "/events/"+itoa(e.ID)+"/availability", nil)
	if a := decode[domain.Availability](t, w); a.Available != 8 {
		t.Fatalf("expected only the first booking to hold seats, got %+v", a)
	}

	// Whitespace around the user name is not a different request.
	w = s.do(t, http.MethodPost, "/bookings",
		BookRequest{EventID: e.ID, UserName: " alice ", TicketCount: 2}, "Idempotency-Key", "k")
	if w.Code != http.StatusCreated {
		t.Fatalf("normalized replay: expected 201, got %d body %s", w.Code, w.Body)
	}
}

func TestRouter_RateLimited(t *testing.T) {
	s := newTestServer(t, stubLimiter{decision: redisrepo.Decision{Allowed: false, RetryAfter: 1500 * time.Millisecond}})
	e := s.createEvent(t, 5)

	w := s.do(t, http.MethodPost, "/bookings", BookRequest{EventID: e.ID, UserName: "alice", TicketCount: 1})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2, got %q", got)
	}

	w = s.do(t, http.MethodGet, "/events/"+itoa(e.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reads must not be rate limited, got %d", w.Code)
	}
}

func TestRouter_RateLimiterFailureLetsRequestThrough(t *testing.T) {
	s := newTestServer(t, stubLimiter{err: errors.New("redis down")})
	e := s.createEvent(t, 5)

	w := s.do(t, http.MethodPost, "/bookings", BookRequest{EventID: e.ID, UserName: "alice", TicketCount: 1})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body %s", w.Code, w.Body)
	}
}

func TestRouter_EventETag(t *testing.T) {
	s := newTestServer(t, nil)
	e := s.createEvent(t, 5)

	w := s.do(t, http.MethodGet, "/events/"+itoa(e.ID), nil)
	tag := w.Header().Get("ETag")
	if tag == "" {
		t.Fatalf("expected ETag header")
	}

	w = s.do(t, http.MethodGet, "/events/"+itoa(e.ID), nil, "If-None-Match", tag)
	if w.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", w.Code)
	}

	s.do(t, http.MethodPost, "/bookings", BookRequest{EventID: e.ID, UserName: "alice", TicketCount: 1})

	w = s.do(t, http.MethodGet, "/events/"+itoa(e.ID), nil, "If-None-Match", tag)
	if w.Code != http.StatusOK {
		t.Fatalf("expected fresh body after booking, got %d", w.Code)
	}
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	if w := s.do(t, http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
		t.Fatalf("healthz: %d", w.Code)
	}

	e := s.createEvent(t, 1)
	s.do(t, http.MethodPost, "/bookings", BookRequest{EventID: e.ID, UserName: "alice", TicketCount: 1})

	w := s.do(t, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		"tickets_http_requests_total",
		`tickets_reservation_operations_total{op="book",outcome="ok"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output", want)
		}
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
