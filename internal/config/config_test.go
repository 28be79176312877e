package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Setenv("POSTGRES_USER", "tickets")
	t.Setenv("POSTGRES_PASSWORD", "s3cr#t")
	t.Setenv("POSTGRES_DB", "tickets")
}

func TestNew_Defaults(t *testing.T) {
	setRequired(t)
	for _, key := range []string{
		"SERVER_HOST", "SERVER_PORT", "POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_SSLMODE",
		"POSTGRES_MAX_CONNS", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "RABBITMQ_URL",
		"RATE_LIMIT_BOOKINGS", "RATE_LIMIT_WINDOW", "OP_TIMEOUT", "EVENT_CACHE_TTL",
		"IDEMPOTENCY_TTL", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := New()
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8080 {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Postgres.Port != 5432 || cfg.Postgres.SSLMode != "disable" {
		t.Fatalf("unexpected postgres config %+v", cfg.Postgres)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected redis addr %q", cfg.Redis.Addr)
	}
	if cfg.RabbitMQ.URL != "" {
		t.Fatalf("expected messaging disabled by default")
	}

	want := ReservationConfig{
		OpTimeout:         5 * time.Second,
		RateLimitBookings: 10,
		RateLimitWindow:   time.Minute,
		EventCacheTTL:     time.Minute,
		IdempotencyTTL:    2 * time.Hour,
	}
	if cfg.Reservation != want {
		t.Fatalf("expected %+v, got %+v", want, cfg.Reservation)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("expected info level, got %v", cfg.LogLevel)
	}
}

func TestNew_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("OP_TIMEOUT", "750ms")
	t.Setenv("RATE_LIMIT_BOOKINGS", "100")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("RABBITMQ_URL", "amqp://guest:guest@mq:5672/")

	cfg, err := New()
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Redis.DB != 3 {
		t.Fatalf("overrides not applied: %+v %+v", cfg.Server, cfg.Redis)
	}
	if cfg.Reservation.OpTimeout != 750*time.Millisecond || cfg.Reservation.RateLimitBookings != 100 {
		t.Fatalf("reservation overrides not applied: %+v", cfg.Reservation)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v", cfg.LogLevel)
	}
	if cfg.RabbitMQ.URL == "" {
		t.Fatalf("expected rabbitmq url")
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{name: "missing user", key: "POSTGRES_USER", value: "", wantErr: "POSTGRES_USER"},
		{name: "bad port", key: "SERVER_PORT", value: "http", wantErr: "SERVER_PORT"},
		{name: "bad duration", key: "OP_TIMEOUT", value: "5", wantErr: "OP_TIMEOUT"},
		{name: "bad level", key: "LOG_LEVEL", value: "loud", wantErr: "LOG_LEVEL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.value)

			_, err := New()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error mentioning %s, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPostgresConfig_DSN(t *testing.T) {
	c := PostgresConfig{User: "u", Password: "p@ss", Host: "db", Port: 5433, Name: "tickets", SSLMode: "disable"}

	want := "postgres://u:p%40ss@db:5433/tickets?sslmode=disable"
	if got := c.DSN(); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
