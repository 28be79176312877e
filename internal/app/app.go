package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/ticket-reservation/internal/config"
	"github.com/kirinyoku/ticket-reservation/internal/metrics"
	"github.com/kirinyoku/ticket-reservation/internal/postgres"
	"github.com/kirinyoku/ticket-reservation/internal/queue"
	"github.com/kirinyoku/ticket-reservation/internal/redis"
	postgresrepo "github.com/kirinyoku/ticket-reservation/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/ticket-reservation/internal/repository/redis"
	"github.com/kirinyoku/ticket-reservation/internal/service"
	"github.com/kirinyoku/ticket-reservation/internal/service/query"
	"github.com/kirinyoku/ticket-reservation/internal/service/reservation"
	httpgin "github.com/kirinyoku/ticket-reservation/internal/transport/http/gin"
	"github.com/kirinyoku/ticket-reservation/migrations"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server

	pool      *pgxpool.Pool
	rdb       *goredis.Client
	publisher *queue.Publisher
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.New"

	pgxPool, err := postgres.New(ctx, postgres.Config{
		DSN:      cfg.Postgres.DSN(),
		MaxConns: cfg.Postgres.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: initialize postgres: %w", op, err)
	}

	if err := migrations.Apply(ctx, pgxPool); err != nil {
		pgxPool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb, err := redis.New(ctx, redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		pgxPool.Close()
		return nil, fmt.Errorf("%s: initialize redis: %w", op, err)
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		pool:   pgxPool,
		rdb:    rdb,
	}

	store := postgresrepo.NewStore(pgxPool)
	cache := redisrepo.New(rdb)
	pubsub := redisrepo.NewEventsPubSub(rdb)
	limiter := redisrepo.NewSlidingWindowLimiter(
		rdb,
		"bookings",
		cfg.Reservation.RateLimitBookings,
		cfg.Reservation.RateLimitWindow,
	)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, cfg.Reservation.IdempotencyTTL)
	m := metrics.New(prometheus.DefaultRegisterer)

	deps := service.Deps{
		Cache:   cache,
		PubSub:  pubsub,
		Metrics: m,
		Logger:  logger,
	}

	if cfg.RabbitMQ.URL != "" {
		a.publisher, err = queue.NewPublisher(cfg.RabbitMQ.URL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("%s: initialize rabbitmq: %w", op, err)
		}
		deps.Publisher = a.publisher
	}

	services := service.NewServices(store, deps, service.Config{
		Reservation: reservation.Config{OpTimeout: cfg.Reservation.OpTimeout},
		Query:       query.Config{EventSummaryTTL: cfg.Reservation.EventCacheTTL},
	})

	router := httpgin.NewRouter(services, httpgin.Deps{
		Idempotency: idempotencyStore,
		Limiter:     limiter,
		Metrics:     m,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return a, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer a.close()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

func (a *App) close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("close rabbitmq publisher", slog.Any("err", err))
		}
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
