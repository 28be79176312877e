package testutil

import (
	"context"
	"os"
	"testing"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kirinyoku/ticket-reservation/internal/redis"
)

// NewTestRedis connects to database db of TEST_REDIS_ADDR (default
// localhost:6379) and skips the test when Redis is unreachable. The database
// is flushed before the test runs, so each test package must use its own db.
func NewTestRedis(t *testing.T, db int) *goredis.Client {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	rdb, err := redis.New(context.Background(), redis.Config{Addr: addr, DB: db})
	if err != nil {
		t.Skipf("skipping Redis integration tests: %v", err)
	}

	if err := rdb.FlushDB(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		t.Fatalf("flush redis: %v", err)
	}

	t.Cleanup(func() { _ = rdb.Close() })

	return rdb
}
