// Package cache provides the Redis-backed tenant resolution cache shared by
// edge router instances.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/comandocentral/edge-svc/internal/config"
	"github.com/comandocentral/edge-svc/internal/resolver"
)

const keyPrefix = "tenant:"

// Redis implements resolver.Cache on top of a shared Redis instance. Entries
// expire after a fixed TTL; negative results are never written.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to Redis and verifies the connection with a ping.
func NewRedis(ctx context.Context, cfg config.RedisConfig, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Redis{client: client, ttl: ttl}, nil
}

// Get looks up a hostname. A missing key is a miss, not an error.
func (c *Redis) Get(ctx context.Context, hostname string) (resolver.Result, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+hostname).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return resolver.Result{}, false, nil
		}
		return resolver.Result{}, false, fmt.Errorf("redis get: %w", err)
	}

	var res resolver.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return resolver.Result{}, false, fmt.Errorf("corrupt cache entry for %s: %w", hostname, err)
	}
	return res, true, nil
}

// Put stores a positive resolution with the configured TTL. Concurrent
// writers for the same hostname race harmlessly: last write wins with the
// same semantic value.
func (c *Redis) Put(ctx context.Context, hostname string, res resolver.Result) error {
	if !res.Found {
		return nil
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+hostname, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (c *Redis) Close() error {
	return c.client.Close()
}
