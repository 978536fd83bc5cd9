// Package sink provides durable destinations for buffered resilience
// events. The Redis sink is the default production destination; the
// in-memory buffer falls back to it opportunistically whenever the
// connection is healthy.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/obsguard/obsguard/pkg/config"
	"github.com/obsguard/obsguard/pkg/errors"
	"github.com/obsguard/obsguard/pkg/resilience"
)

const (
	// eventListKey is the Redis list holding flushed events, newest first
	eventListKey = "obsguard:events"

	// maxListLength bounds the Redis list so an unattended instance
	// cannot grow it without limit
	maxListLength = 10000
)

// RedisSink persists resilience events to a Redis list
type RedisSink struct {
	client *redis.Client
	config *config.RedisConfig
}

// NewRedisSink creates a Redis-backed event sink and verifies the
// connection before returning
func NewRedisSink(cfg *config.RedisConfig) (*RedisSink, error) {
	if cfg == nil {
		return nil, errors.NewValidationError("Redis configuration is required")
	}

	opts := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		PoolTimeout:     4 * time.Second,
		ConnMaxIdleTime: 5 * time.Minute,

		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.NewInternalError("failed to connect to Redis").WithCause(err)
	}

	return &RedisSink{
		client: client,
		config: cfg,
	}, nil
}

// Write appends the events to the Redis list in a single pipeline and
// trims the list to its bound. Either every event lands or the batch
// fails as a whole, so the caller can safely retain the batch on error.
func (s *RedisSink) Write(ctx context.Context, events []resilience.Event) error {
	if len(events) == 0 {
		return nil
	}

	payloads := make([]interface{}, 0, len(events))
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return errors.NewInternalError("failed to marshal event").WithCause(err)
		}
		payloads = append(payloads, data)
	}

	pipe := s.client.Pipeline()
	pipe.LPush(ctx, eventListKey, payloads...)
	pipe.LTrim(ctx, eventListKey, 0, maxListLength-1)

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.NewExternalError("redis", "failed to persist events").WithCause(err)
	}

	return nil
}

// Healthy reports whether the sink can currently accept writes
func (s *RedisSink) Healthy(ctx context.Context) bool {
	if s.client == nil {
		return false
	}
	return s.client.Ping(ctx).Err() == nil
}

// Len returns the number of persisted events awaiting consumption
func (s *RedisSink) Len(ctx context.Context) (int64, error) {
	length, err := s.client.LLen(ctx, eventListKey).Result()
	if err != nil {
		return 0, errors.NewExternalError("redis", "failed to get event list length").WithCause(err)
	}
	return length, nil
}

// Drain pops up to limit events from the oldest end of the list.
// Intended for downstream consumers and for tests.
func (s *RedisSink) Drain(ctx context.Context, limit int) ([]resilience.Event, error) {
	events := make([]resilience.Event, 0, limit)

	for i := 0; i < limit; i++ {
		raw, err := s.client.RPop(ctx, eventListKey).Result()
		if err != nil {
			if err == redis.Nil {
				break
			}
			return events, errors.NewExternalError("redis", "failed to pop event").WithCause(err)
		}

		var event resilience.Event
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			return events, errors.NewInternalError("failed to unmarshal event").WithCause(err)
		}
		events = append(events, event)
	}

	return events, nil
}

// Close releases the Redis connection
func (s *RedisSink) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
