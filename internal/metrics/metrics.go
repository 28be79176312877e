package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tickets"

// Outcome labels recorded for reservation operations.
const (
	OutcomeOK                   = "ok"
	OutcomeNotFound             = "not_found"
	OutcomeInsufficientCapacity = "insufficient_capacity"
	OutcomeInvalid              = "invalid"
	OutcomeError                = "error"
)

// Metrics holds the collectors of the service. A nil *Metrics records
// nothing.
type Metrics struct {
	opsTotal     *prometheus.CounterVec
	opDuration   *prometheus.HistogramVec
	seatsBooked  prometheus.Counter
	seatsFreed   prometheus.Counter
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		opsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reservation", Name: "operations_total",
			Help: "Reservation operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "reservation", Name: "operation_duration_seconds",
			Help:    "Duration of reservation operations including lock waits and retries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		seatsBooked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reservation", Name: "seats_booked_total",
			Help: "Seats taken by committed bookings.",
		}),
		seatsFreed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reservation", Name: "seats_released_total",
			Help: "Seats returned by committed cancellations.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		m.opsTotal,
		m.opDuration,
		m.seatsBooked,
		m.seatsFreed,
		m.httpRequests,
		m.httpDuration,
	)

	return m
}

func (m *Metrics) ObserveOp(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.opsTotal.WithLabelValues(op, outcome).Inc()
	m.opDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) SeatsBooked(n int) {
	if m == nil {
		return
	}
	m.seatsBooked.Add(float64(n))
}

func (m *Metrics) SeatsReleased(n int) {
	if m == nil {
		return
	}
	m.seatsFreed.Add(float64(n))
}

// ObserveHTTP records one request. route must be the route template, not
// the raw path.
func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
