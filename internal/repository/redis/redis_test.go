package redisrepo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirinyoku/ticket-reservation/internal/domain"
	redisrepo "github.com/kirinyoku/ticket-reservation/internal/repository/redis"
	"github.com/kirinyoku/ticket-reservation/internal/testutil"
)

func TestCache_GetOrSetJSON(t *testing.T) {
	rdb := testutil.NewTestRedis(t, 15)
	cache := redisrepo.New(rdb)
	ctx := context.Background()

	loads := 0
	loader := func(context.Context) (domain.Event, error) {
		loads++
		return domain.Event{ID: 7, Name: "Opera", TotalSeats: 10, AvailableSeats: 4}, nil
	}

	key := redisrepo.KeyEventSummary(7)
	for i := 0; i < 3; i++ {
		e, err := redisrepo.GetOrSetJSON(ctx, cache, key, time.Minute, loader)
		if err != nil {
			t.Fatalf("get or set: %v", err)
		}
		if e.AvailableSeats != 4 {
			t.Fatalf("expected 4 available seats, got %d", e.AvailableSeats)
		}
	}
	if loads != 1 {
		t.Fatalf("expected a single load, got %d", loads)
	}

	if err := cache.InvalidateEvent(ctx, 7); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := redisrepo.GetOrSetJSON(ctx, cache, key, time.Minute, loader); err != nil {
		t.Fatalf("get or set: %v", err)
	}
	if loads != 2 {
		t.Fatalf("expected a reload after invalidation, got %d loads", loads)
	}

	missing := errors.New("missing")
	_, err := redisrepo.GetOrSetJSON(ctx, cache, redisrepo.KeyEventSummary(8), time.Minute,
		func(context.Context) (domain.Event, error) { return domain.Event{}, missing })
	if !errors.Is(err, missing) {
		t.Fatalf("expected loader error, got %v", err)
	}
}

func TestCache_FillDuringInvalidationIsDropped(t *testing.T) {
	rdb := testutil.NewTestRedis(t, 15)
	cache := redisrepo.New(rdb)
	ctx := context.Background()
	key := redisrepo.KeyEventSummary(9)

	loads := 0
	stale := func(ctx context.Context) (domain.Event, error) {
		loads++
		// A booking commits and invalidates while the old row is in hand.
		if err := cache.InvalidateEvent(ctx, 9); err != nil {
			return domain.Event{}, err
		}
		return domain.Event{ID: 9, TotalSeats: 10, AvailableSeats: 10}, nil
	}
	if _, err := redisrepo.GetOrSetJSON(ctx, cache, key, time.Minute, stale); err != nil {
		t.Fatalf("get or set: %v", err)
	}
	if _, found, _ := redisrepo.GetJSON[domain.Event](ctx, cache, key); found {
		t.Fatalf("expected the overlapping fill not to be cached")
	}

	fresh := func(context.Context) (domain.Event, error) {
		loads++
		return domain.Event{ID: 9, TotalSeats: 10, AvailableSeats: 7}, nil
	}
	e, err := redisrepo.GetOrSetJSON(ctx, cache, key, time.Minute, fresh)
	if err != nil {
		t.Fatalf("get or set: %v", err)
	}
	if e.AvailableSeats != 7 || loads != 2 {
		t.Fatalf("expected a fresh load, got %+v after %d loads", e, loads)
	}
	if cached, found, _ := redisrepo.GetJSON[domain.Event](ctx, cache, key); !found || cached.AvailableSeats != 7 {
		t.Fatalf("expected the fresh value to be cached, got %+v %v", cached, found)
	}
}

func TestIdempotencyStore(t *testing.T) {
	rdb := testutil.NewTestRedis(t, 15)
	store := redisrepo.NewIdempotencyStore(rdb, time.Minute)
	ctx := context.Background()
	key := redisrepo.KeyIdemBooking(1, "alice", "abc")

	ok, err := store.AcquireLock(ctx, key, "fp1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first lock, got %v %v", ok, err)
	}
	ok, err = store.AcquireLock(ctx, key, "fp1", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected second lock to fail, got %v %v", ok, err)
	}

	rec, found, err := store.Lookup(ctx, key)
	if err != nil || !found || rec.Completed || rec.Fingerprint != "fp1" {
		t.Fatalf("expected in-flight record, got %+v %v %v", rec, found, err)
	}

	if err := store.SaveResult(ctx, key, "fp1", []byte(`{"id":1,"note":"a:b"}`)); err != nil {
		t.Fatalf("save result: %v", err)
	}
	rec, found, err = store.Lookup(ctx, key)
	if err != nil || !found || !rec.Completed || rec.Fingerprint != "fp1" || string(rec.Payload) != `{"id":1,"note":"a:b"}` {
		t.Fatalf("unexpected record %+v %v %v", rec, found, err)
	}

	if err := store.Release(ctx, key); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, found, _ := store.Lookup(ctx, key); found {
		t.Fatalf("expected record to be gone after release")
	}
}

func TestKeyIdemBooking_Scoped(t *testing.T) {
	base := redisrepo.KeyIdemBooking(1, "alice", "k")
	for _, other := range []string{
		redisrepo.KeyIdemBooking(2, "alice", "k"),
		redisrepo.KeyIdemBooking(1, "bob", "k"),
		redisrepo.KeyIdemBooking(1, "alice", "k2"),
	} {
		if other == base {
			t.Fatalf("expected %q to differ from %q", other, base)
		}
	}
	if redisrepo.KeyIdemBooking(1, "a:b", "c") == redisrepo.KeyIdemBooking(1, "a", "b:c") {
		t.Fatalf("user name must not bleed into the idempotency key")
	}
}

func TestSlidingWindowLimiter(t *testing.T) {
	rdb := testutil.NewTestRedis(t, 15)
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, "bookings", 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := limiter.Allow(ctx, "ip:10.0.0.1")
		if err != nil || !d.Allowed {
			t.Fatalf("hit %d: expected allowed, got %+v %v", i, d, err)
		}
	}

	d, err := limiter.Allow(ctx, "ip:10.0.0.1")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if d.Allowed || d.RetryAfter <= 0 {
		t.Fatalf("expected third hit to be limited with retry, got %+v", d)
	}

	other, err := limiter.Allow(ctx, "ip:10.0.0.2")
	if err != nil || !other.Allowed {
		t.Fatalf("expected other subject to be allowed, got %+v %v", other, err)
	}
}
