package httpgin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/kirinyoku/ticket-reservation/internal/domain"
	"github.com/kirinyoku/ticket-reservation/internal/metrics"
	redisrepo "github.com/kirinyoku/ticket-reservation/internal/repository/redis"
	"github.com/kirinyoku/ticket-reservation/internal/service"
	"github.com/kirinyoku/ticket-reservation/internal/service/admin"
	"github.com/kirinyoku/ticket-reservation/internal/service/reservation"
)

const idemLockTTL = 60 * time.Second

type IdempotencyStore interface {
	AcquireLock(ctx context.Context, key, fingerprint string, lockTTL time.Duration) (bool, error)
	SaveResult(ctx context.Context, key, fingerprint string, payload []byte) error
	Lookup(ctx context.Context, key string) (redisrepo.IdempotencyRecord, bool, error)
	Release(ctx context.Context, key string) error
}

// Deps are the optional collaborators of the router.
type Deps struct {
	Idempotency IdempotencyStore
	Limiter     RateLimiter
	Metrics     *metrics.Metrics
	// Gatherer backs /metrics; prometheus.DefaultGatherer when nil.
	Gatherer prometheus.Gatherer
}

func NewRouter(
	svcs *service.Services,
	deps Deps,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), RequestIDMiddleware(), LoggingMiddleware(logger), CORS())
	if deps.Metrics != nil {
		r.Use(MetricsMiddleware(deps.Metrics))
	}
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/events", handleListEvents(svcs))
	r.GET("/events/:id", handleGetEvent(svcs))
	r.GET("/events/:id/availability", handleGetAvailability(svcs))

	var limiter gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if deps.Limiter != nil {
		limiter = RateLimit(deps.Limiter, logger)
	}

	r.POST("/bookings", limiter, handleBook(svcs, deps.Idempotency, logger))
	r.GET("/bookings", handleListBookings(svcs))
	r.GET("/bookings/:id", handleGetBooking(svcs))
	r.DELETE("/bookings/:id", handleCancelBooking(svcs))
	r.GET("/users/:name/bookings", handleListUserBookings(svcs))

	adminAPI := r.Group("/admin")
	{
		adminAPI.POST("/events", handleCreateEvent(svcs))
		adminAPI.PUT("/events/:id", handleUpdateEvent(svcs))
		adminAPI.DELETE("/events/:id", handleDeleteEvent(svcs))
	}

	return r
}

// @Summary  List events
// @Param    limit  query  int  false  "page size (default 50, max 200)"
// @Param    offset query  int  false  "offset"
// @Success  200  {array}  domain.Event
// @Router   /events [get]
func handleListEvents(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := parseIntDefault(c.Query("limit"), 0)
		offset := parseIntDefault(c.Query("offset"), 0)

		events, err := svcs.Query.ListEvents(c.Request.Context(), limit, offset)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, events)
	}
}

// @Summary  Get event
// @Param    id  path  int  true  "Event ID"
// @Success  200  {object}  domain.Event
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id} [get]
func handleGetEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		e, err := svcs.Query.GetEvent(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, e, "public, max-age=10", true)
	}
}

// @Summary  Get seat availability
// @Param    id  path  int  true  "Event ID"
// @Success  200  {object}  domain.Availability
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id}/availability [get]
func handleGetAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		a, err := svcs.Query.Availability(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, a, "no-cache", true)
	}
}

// @Summary  Book tickets (idempotent)
// @Param    req body  BookRequest true "payload"
// @Param    Idempotency-Key header string false "replays the first response for the same event, user and key"
// @Success  201 {object} domain.Booking
// @Failure  400 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse "event not found"
// @Failure  409 {object} ErrorResponse "insufficient capacity / idempotency key in progress"
// @Failure  422 {object} ErrorResponse "idempotency key reused with a different request"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Failure  503 {object} ErrorResponse
// @Router   /bookings [post]
func handleBook(svcs *service.Services, idem IdempotencyStore, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		ctx := c.Request.Context()

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey, fingerprint string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemBooking(req.EventID, strings.TrimSpace(req.UserName), idemKey)
			fingerprint = req.fingerprint()
			c.Header("Idempotency-Key", idemKey)

			if rec, ok, _ := idem.Lookup(ctx, idemStorageKey); ok {
				replayIdempotent(c, rec, fingerprint)
				return
			}

			locked, err := idem.AcquireLock(ctx, idemStorageKey, fingerprint, idemLockTTL)
			if err != nil {
				_ = c.Error(err)
				c.JSON(http.StatusServiceUnavailable, ErrorResponse{
					Error: "idempotency store unavailable",
					Code:  "storage_failure",
				})
				return
			}
			if !locked {
				rec, ok, _ := idem.Lookup(ctx, idemStorageKey)
				if !ok {
					rec = redisrepo.IdempotencyRecord{Fingerprint: fingerprint}
				}
				replayIdempotent(c, rec, fingerprint)
				return
			}
		}

		booking, err := svcs.Reservation.Book(ctx, req.EventID, req.UserName, req.TicketCount)
		if err != nil {
			if idemStorageKey != "" {
				if rerr := idem.Release(context.WithoutCancel(ctx), idemStorageKey); rerr != nil {
					logger.WarnContext(ctx, "release idempotency key", slog.Any("err", rerr))
				}
			}
			respondErr(c, err)
			return
		}

		b, err := json.Marshal(booking)
		if err != nil {
			respondErr(c, err)
			return
		}

		if idemStorageKey != "" {
			if err := idem.SaveResult(context.WithoutCancel(ctx), idemStorageKey, fingerprint, b); err != nil {
				logger.WarnContext(ctx, "save idempotent result", slog.Any("err", err))
			}
		}

		c.Data(http.StatusCreated, "application/json; charset=utf-8", b)
	}
}

// replayIdempotent answers a request whose Idempotency-Key was already
// used. A key reused with a different payload is rejected.
func replayIdempotent(c *gin.Context, rec redisrepo.IdempotencyRecord, fingerprint string) {
	switch {
	case rec.Fingerprint != fingerprint:
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: "idempotency key reused with a different request",
			Code:  "idempotency_key_mismatch",
		})
	case rec.Completed:
		c.Data(http.StatusCreated, "application/json; charset=utf-8", rec.Payload)
	default:
		c.Header("Retry-After", "1")
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: "idempotency key in progress",
			Code:  "idempotency_in_progress",
		})
	}
}

// @Summary  List bookings
// @Param    user query string false "only bookings of this user"
// @Success  200 {array} domain.Booking
// @Router   /bookings [get]
func handleListBookings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			out []domain.Booking
			err error
		)
		if user, ok := c.GetQuery("user"); ok {
			out, err = svcs.Reservation.ListForUser(c.Request.Context(), user)
		} else {
			out, err = svcs.Reservation.ListAll(c.Request.Context())
		}
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary  Get booking
// @Param    id  path  int  true  "Booking ID"
// @Success  200 {object} domain.Booking
// @Failure  404 {object} ErrorResponse
// @Router   /bookings/{id} [get]
func handleGetBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		b, err := svcs.Reservation.GetByID(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

// @Summary  Cancel booking
// @Param    id  path  int  true  "Booking ID"
// @Success  204
// @Failure  404 {object} ErrorResponse
// @Router   /bookings/{id} [delete]
func handleCancelBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		if err := svcs.Reservation.Cancel(c.Request.Context(), id); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  List bookings of a user
// @Param    name  path  string  true  "User name"
// @Success  200 {array} domain.Booking
// @Router   /users/{name}/bookings [get]
func handleListUserBookings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := svcs.Reservation.ListForUser(c.Request.Context(), c.Param("name"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary  Create event
// @Param    req body  CreateEventRequest true "payload"
// @Success  201 {object} domain.Event
// @Failure  400 {object} ErrorResponse
// @Router   /admin/events [post]
func handleCreateEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		date, err := parseRFC3339(req.Date)
		if err != nil {
			badRequest(c, "invalid date (RFC3339)")
			return
		}
		e, err := svcs.Admin.CreateEvent(c.Request.Context(), admin.CreateEventInput{
			Name:       req.Name,
			Date:       date,
			Venue:      req.Venue,
			TotalSeats: *req.TotalSeats,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, e)
	}
}

// @Summary  Update event details
// @Param    id  path  int  true  "Event ID"
// @Param    req body  UpdateEventRequest true "payload"
// @Success  200 {object} domain.Event
// @Failure  404 {object} ErrorResponse
// @Router   /admin/events/{id} [put]
func handleUpdateEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req UpdateEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		date, err := parseRFC3339(req.Date)
		if err != nil {
			badRequest(c, "invalid date (RFC3339)")
			return
		}
		e, err := svcs.Admin.UpdateEvent(c.Request.Context(), id, admin.UpdateEventInput{
			Name:  req.Name,
			Date:  date,
			Venue: req.Venue,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, e)
	}
}

// @Summary  Delete event
// @Param    id  path  int  true  "Event ID"
// @Success  204
// @Failure  404 {object} ErrorResponse
// @Router   /admin/events/{id} [delete]
func handleDeleteEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		if err := svcs.Admin.DeleteEvent(c.Request.Context(), id); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: "invalid_argument"})
}

func respondErr(c *gin.Context, err error) {
	_ = c.Error(err)

	switch {
	case errors.Is(err, reservation.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: notFoundMessage(err), Code: "not_found"})
	case errors.Is(err, reservation.ErrInsufficientCapacity):
		msg := "insufficient capacity"
		var capErr reservation.InsufficientCapacityError
		if errors.As(err, &capErr) {
			msg = capErr.Error()
		}
		c.JSON(http.StatusConflict, ErrorResponse{Error: msg, Code: "insufficient_capacity"})
	case errors.Is(err, reservation.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "invalid_argument"})
	case errors.Is(err, reservation.ErrStorageFailure):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "storage unavailable", Code: "storage_failure"})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: "internal"})
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, reservation.ErrEventNotFound):
		return "event not found"
	case errors.Is(err, reservation.ErrBookingNotFound):
		return "booking not found"
	default:
		return "not found"
	}
}
