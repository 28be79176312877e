package redisrepo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idemLockPrefix = "LOCK:"
	idemResPrefix  = "RES:"
)

// IdempotencyRecord is what a key holds: the fingerprint of the request that
// claimed it and, once that request completed, its response.
type IdempotencyRecord struct {
	Fingerprint string
	Payload     []byte
	Completed   bool
}

// IdempotencyStore remembers the response of a booking request made with an
// Idempotency-Key, so a retried POST returns the first booking instead of
// taking more seats. A key holds "LOCK:<fp>" while the first request is in
// flight and "RES:<fp>:<json>" once it completed. Fingerprints must not
// contain ':'.
type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

// AcquireLock claims key for the request identified by fingerprint. It
// returns false when another request already holds or completed the key.
func (s *IdempotencyStore) AcquireLock(ctx context.Context, key, fingerprint string, lockTTL time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, idemLockPrefix+fingerprint, lockTTL).Result()
}

func (s *IdempotencyStore) SaveResult(ctx context.Context, key, fingerprint string, jsonPayload []byte) error {
	return s.rdb.Set(ctx, key, idemResPrefix+fingerprint+":"+string(jsonPayload), s.ttl).Err()
}

// Lookup returns the record stored under key, if any.
func (s *IdempotencyStore) Lookup(ctx context.Context, key string) (IdempotencyRecord, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return IdempotencyRecord{}, false, nil
	}
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	rec, ok := parseIdempotencyRecord(v)
	return rec, ok, nil
}

// Release forgets key so the request can be retried, used when the first
// attempt failed.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// parseIdempotencyRecord decodes a stored value. Unknown formats report
// false.
func parseIdempotencyRecord(v string) (IdempotencyRecord, bool) {
	if fp, ok := strings.CutPrefix(v, idemLockPrefix); ok {
		return IdempotencyRecord{Fingerprint: fp}, true
	}

	rest, ok := strings.CutPrefix(v, idemResPrefix)
	if !ok {
		return IdempotencyRecord{}, false
	}
	fp, payload, ok := strings.Cut(rest, ":")
	if !ok {
		return IdempotencyRecord{}, false
	}

	return IdempotencyRecord{Fingerprint: fp, Payload: []byte(payload), Completed: true}, true
}
