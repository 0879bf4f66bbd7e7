package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrIdempotencyInFlight means another request holding the same key has not finished.
var ErrIdempotencyInFlight = errors.New("request with this idempotency key is still in progress")

const idempotencyPending = "pending"

type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// IdempotencyStore remembers which lead a client-supplied idempotency key produced.
type IdempotencyStore struct {
	redis RedisClient
	ttl   time.Duration
}

func NewIdempotencyStore(rdb RedisClient, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{redis: rdb, ttl: ttl}
}

func idempotencyKey(scope, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", scope, key)
}

// Claim reserves key within scope. claimed is true when the caller should
// perform the work; otherwise leadID is the result of the earlier request.
func (s *IdempotencyStore) Claim(ctx context.Context, scope, key string) (leadID uuid.UUID, claimed bool, err error) {
	k := idempotencyKey(scope, key)
	ok, err := s.redis.SetNX(ctx, k, idempotencyPending, s.ttl).Result()
	if err != nil {
		return uuid.Nil, false, err
	}
	if ok {
		return uuid.Nil, true, nil
	}

	val, err := s.redis.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SetNX and Get
		return uuid.Nil, false, ErrIdempotencyInFlight
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	if val == idempotencyPending {
		return uuid.Nil, false, ErrIdempotencyInFlight
	}
	leadID, err = uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("corrupt idempotency record %q: %w", k, err)
	}
	return leadID, false, nil
}

// Complete records the lead produced for a claimed key.
func (s *IdempotencyStore) Complete(ctx context.Context, scope, key string, leadID uuid.UUID) error {
	return s.redis.Set(ctx, idempotencyKey(scope, key), leadID.String(), s.ttl).Err()
}

// Release forgets a claimed key after a failed request so the client may retry.
func (s *IdempotencyStore) Release(ctx context.Context, scope, key string) error {
	return s.redis.Del(ctx, idempotencyKey(scope, key)).Err()
}

func (s *IdempotencyStore) Close() error {
	return s.redis.Close()
}
