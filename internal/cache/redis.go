package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// DefaultRedisPrefix namespaces every key written by RedisCache.
const DefaultRedisPrefix = "settleup:ledger:"

// RedisCache stores JSON-encoded values in Redis with a TTL.
//
// Calls go through a circuit breaker. While the breaker is open, Get reports
// a miss and Set is dropped, so an unavailable Redis only costs recomputation.
type RedisCache[T any] struct {
	client  redis.UniversalClient
	prefix  string
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
}

// RedisOption customizes a RedisCache.
type RedisOption func(*redisConfig)

type redisConfig struct {
	prefix              string
	consecutiveFailures uint32
	openTimeout         time.Duration
}

// WithPrefix overrides DefaultRedisPrefix.
func WithPrefix(prefix string) RedisOption {
	return func(c *redisConfig) { c.prefix = prefix }
}

// WithBreaker sets how many consecutive failures open the breaker and how long it stays open.
func WithBreaker(consecutiveFailures uint32, openTimeout time.Duration) RedisOption {
	return func(c *redisConfig) {
		c.consecutiveFailures = consecutiveFailures
		c.openTimeout = openTimeout
	}
}

// NewRedis wraps client. Entries expire after ttl.
func NewRedis[T any](client redis.UniversalClient, ttl time.Duration, opts ...RedisOption) *RedisCache[T] {
	cfg := redisConfig{
		prefix:              DefaultRedisPrefix,
		consecutiveFailures: 5,
		openTimeout:         30 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	settings := gobreaker.Settings{
		Name:    "redis-cache",
		Timeout: cfg.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.consecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &RedisCache[T]{
		client:  client,
		prefix:  cfg.prefix,
		ttl:     ttl,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (c *RedisCache[T]) redisKey(key Key) string {
	return c.prefix + key.String()
}

// Get fetches and decodes a value. redis.Nil and an open breaker are misses.
func (c *RedisCache[T]) Get(ctx context.Context, key Key) (T, bool, error) {
	var zero T

	result, err := c.breaker.Execute(func() (interface{}, error) {
		data, err := c.client.Get(ctx, c.redisKey(key)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return data, err
	})
	if isBreakerRejection(err) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("failed to get cache entry: %w", err)
	}

	data, _ := result.([]byte)
	if data == nil {
		return zero, false, nil
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return zero, false, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return value, true, nil
}

// Set encodes and stores a value with the configured TTL.
func (c *RedisCache[T]) Set(ctx context.Context, key Key, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Set(ctx, c.redisKey(key), data, c.ttl).Err()
	})
	if isBreakerRejection(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}
	return nil
}

// State reports the breaker state ("closed", "half-open" or "open").
func (c *RedisCache[T]) State() string {
	return c.breaker.State().String()
}

func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
