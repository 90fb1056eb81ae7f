package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jdziat/paid-deploy-jobs/pkg/core"
)

// DefaultRedisPrefix namespaces counter keys.
const DefaultRedisPrefix = "paid-deploy:counter:"

// RedisCounterStore keeps counters as Redis integers.
type RedisCounterStore struct {
	client redis.UniversalClient
	prefix string
}

var _ core.CounterStore = (*RedisCounterStore)(nil)

// NewRedisCounterStore wraps client. An empty prefix selects
// DefaultRedisPrefix.
func NewRedisCounterStore(client redis.UniversalClient, prefix string) *RedisCounterStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisCounterStore{client: client, prefix: prefix}
}

// IncrementCounter adds one to key with INCR.
func (s *RedisCounterStore) IncrementCounter(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, s.prefix+key).Result()
	if err != nil {
		return 0, fmt.Errorf("jobs: increment counter %s: %w", key, err)
	}
	return n, nil
}

// GetCounter returns the value of key, or zero when it was never set.
func (s *RedisCounterStore) GetCounter(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Get(ctx, s.prefix+key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("jobs: read counter %s: %w", key, err)
	}
	return n, nil
}
