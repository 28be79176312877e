package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	RabbitMQ    RabbitMQConfig
	Reservation ReservationConfig
	LogLevel    slog.Level
}

type ServerConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
	MaxConns int32
}

// DSN returns the pgx connection URL.
func (c PostgresConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// RabbitMQConfig is optional; an empty URL disables booking messages.
type RabbitMQConfig struct {
	URL string
}

type ReservationConfig struct {
	OpTimeout         time.Duration
	RateLimitBookings int
	RateLimitWindow   time.Duration
	EventCacheTTL     time.Duration
	IdempotencyTTL    time.Duration
}

// New reads the configuration from the environment after loading an
// optional .env file.
func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	var err error
	cfg := &Config{}

	cfg.Server.Host = getEnv("SERVER_HOST", "localhost")
	if cfg.Server.Port, err = getInt("SERVER_PORT", 8080); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cfg.Postgres.Host = getEnv("POSTGRES_HOST", "localhost")
	if cfg.Postgres.Port, err = getInt("POSTGRES_PORT", 5432); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, req := range []struct {
		key string
		dst *string
	}{
		{"POSTGRES_USER", &cfg.Postgres.User},
		{"POSTGRES_PASSWORD", &cfg.Postgres.Password},
		{"POSTGRES_DB", &cfg.Postgres.Name},
	} {
		*req.dst = os.Getenv(req.key)
		if *req.dst == "" {
			return nil, fmt.Errorf("%s: missing %s", op, req.key)
		}
	}

	cfg.Postgres.SSLMode = getEnv("POSTGRES_SSLMODE", "disable")

	maxConns, err := getInt("POSTGRES_MAX_CONNS", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	cfg.Postgres.MaxConns = int32(maxConns)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if cfg.Redis.DB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cfg.RabbitMQ.URL = os.Getenv("RABBITMQ_URL")

	r := &cfg.Reservation
	if r.RateLimitBookings, err = getInt("RATE_LIMIT_BOOKINGS", 10); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if r.RateLimitWindow, err = getDuration("RATE_LIMIT_WINDOW", time.Minute); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if r.OpTimeout, err = getDuration("OP_TIMEOUT", 5*time.Second); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if r.EventCacheTTL, err = getDuration("EVENT_CACHE_TTL", time.Minute); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if r.IdempotencyTTL, err = getDuration("IDEMPOTENCY_TTL", 2*time.Hour); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("%s: invalid LOG_LEVEL: %w", op, err)
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	s := getEnv(key, "")
	if s == "" {
		return def, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	s := getEnv(key, "")
	if s == "" {
		return def, nil
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}
