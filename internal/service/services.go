package service

import (
	"log/slog"

	"github.com/kirinyoku/ticket-reservation/internal/metrics"
	"github.com/kirinyoku/ticket-reservation/internal/repository"
	redisrepo "github.com/kirinyoku/ticket-reservation/internal/repository/redis"
	"github.com/kirinyoku/ticket-reservation/internal/service/admin"
	"github.com/kirinyoku/ticket-reservation/internal/service/query"
	"github.com/kirinyoku/ticket-reservation/internal/service/reservation"
)

type Services struct {
	Reservation *reservation.Service
	Query       *query.Service
	Admin       *admin.Service
}

type Config struct {
	Reservation reservation.Config
	Query       query.Config
}

// Deps are the optional collaborators of the services. Nil fields disable
// the matching feature.
type Deps struct {
	Cache     *redisrepo.Cache
	PubSub    *redisrepo.EventsPubSub
	Publisher reservation.BookingPublisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

func NewServices(store repository.Store, deps Deps, cfg Config) *Services {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	opts := []reservation.Option{
		reservation.WithMetrics(deps.Metrics),
		reservation.WithLogger(log),
	}

	var (
		invalidator admin.EventInvalidator
		notifier    admin.EventNotifier
	)
	if deps.Cache != nil {
		invalidator = deps.Cache
		opts = append(opts, reservation.WithCache(deps.Cache))
	}
	if deps.PubSub != nil {
		notifier = deps.PubSub
		opts = append(opts, reservation.WithNotifier(deps.PubSub))
	}
	if deps.Publisher != nil {
		opts = append(opts, reservation.WithPublisher(deps.Publisher))
	}

	return &Services{
		Reservation: reservation.New(store, cfg.Reservation, opts...),
		Query:       query.New(store, deps.Cache, cfg.Query),
		Admin:       admin.New(store, invalidator, notifier, log),
	}
}
