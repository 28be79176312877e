package redisrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// genTTL outlives any single load.
const genTTL = 24 * time.Hour

// Cache is a JSON read-through cache for read-only views of events. Loads
// of one key are collapsed with singleflight. The booking write path never
// reads from it.
//
// Every key has a generation counter that Invalidate bumps before deleting
// the key. A load only fills the cache if the generation it started under
// is still current, so a load that read storage before a write committed
// cannot put the old value back after that write's invalidation.
type Cache struct {
	rdb *redis.Client
	sf  singleflight.Group
}

func New(client *redis.Client) *Cache {
	return &Cache{rdb: client}
}

// Invalidate drops key and fences off loads that started before the call.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey(key))
		pipe.Expire(ctx, genKey(key), genTTL)
		pipe.Del(ctx, key)
		return nil
	})
	return err
}

// InvalidateEvent drops every cached view of an event.
func (c *Cache) InvalidateEvent(ctx context.Context, eventID int64) error {
	const op = "redisrepo.Cache.InvalidateEvent"

	if err := c.Invalidate(ctx, KeyEventSummary(eventID)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *Cache) generation(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Get(ctx, genKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// setIfGeneration stores val under key unless the key was invalidated
// since gen was read.
func (c *Cache) setIfGeneration(ctx context.Context, key string, gen int64, val any, ttl time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}

	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Get(ctx, genKey(key)).Int64()
		if errors.Is(err, redis.Nil) {
			n, err = 0, nil
		}
		if err != nil {
			return err
		}
		if n != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, ttl)
			return nil
		})
		return err
	}, genKey(key))
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}

	return err
}

func GetJSON[T any](ctx context.Context, c *Cache, key string) (T, bool, error) {
	var zero T

	s, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}

	var out T
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return zero, false, err
	}

	return out, true, nil
}

// GetOrSetJSON returns the cached value under key, or calls loader and
// caches its result for ttl. Redis failures degrade to calling loader;
// loader errors are returned as is and never cached. A result is not cached
// when the key was invalidated while loader ran.
func GetOrSetJSON[T any](
	ctx context.Context,
	c *Cache,
	key string,
	ttl time.Duration,
	loader func(ctx context.Context) (T, error),
) (T, error) {
	var zero T

	if c == nil {
		return loader(ctx)
	}

	if v, ok, err := GetJSON[T](ctx, c, key); err == nil && ok {
		return v, nil
	}

	vAny, err, _ := c.sf.Do(key, func() (any, error) {
		gen, genErr := c.generation(ctx, key)
		v, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if genErr == nil {
			_ = c.setIfGeneration(ctx, key, gen, v, ttl)
		}
		return v, nil
	})
	if err != nil {
		return zero, err
	}

	v, ok := vAny.(T)
	if !ok {
		return zero, fmt.Errorf("redisrepo.GetOrSetJSON: unexpected %T for %s", vAny, key)
	}

	return v, nil
}
