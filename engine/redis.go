package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "chatcall:cache:"

// RedisClient is the subset of redis.Cmdable used by RedisCache.
// *redis.Client, *redis.ClusterClient and redis.UniversalClient satisfy it.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisOption configures a RedisCache.
type RedisOption func(*redisSettings)

type redisSettings struct {
	prefix string
	ttl    time.Duration
}

// WithPrefix sets the key prefix. Default is "chatcall:cache:".
func WithPrefix(prefix string) RedisOption {
	return func(s *redisSettings) { s.prefix = prefix }
}

// WithTTL sets the expiry of stored entries. <= 0 means no expiry (the default).
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *redisSettings) { s.ttl = ttl }
}

// RedisCache stores JSON-encoded values in Redis so results are shared across processes.
type RedisCache[T any] struct {
	client RedisClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a RedisCache. Panics if client is nil.
func NewRedisCache[T any](client RedisClient, opts ...RedisOption) *RedisCache[T] {
	if client == nil {
		panic("engine: RedisClient must not be nil")
	}
	s := redisSettings{prefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(&s)
	}
	return &RedisCache[T]{client: client, prefix: s.prefix, ttl: s.ttl}
}

// Get implements CacheStrategy. redis.Nil is reported as a miss.
func (r *RedisCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("engine: redis get: %w", err)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return zero, false, fmt.Errorf("engine: decode cached value: %w", err)
	}
	return v, true, nil
}

// Set implements CacheStrategy.
func (r *RedisCache[T]) Set(ctx context.Context, key string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("engine: encode cached value: %w", err)
	}
	if err := r.client.Set(ctx, r.prefix+key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("engine: redis set: %w", err)
	}
	return nil
}

// Compile-time checks.
var (
	_ CacheStrategy[string] = (*RedisCache[string])(nil)
	_ RedisClient           = (*redis.Client)(nil)
)
