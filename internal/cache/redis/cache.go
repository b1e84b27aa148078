// Package redis provides a Redis-backed cache implementation for
// multi-replica deployments that share validated identities.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prn-tf/mvstories/internal/config"
	"github.com/prn-tf/mvstories/internal/repository"
)

// Cache implements repository.Cache on a Redis server.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewCache connects to Redis and verifies the connection with a PING.
func NewCache(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) (*Cache, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", repository.ErrCacheUnavailable, cfg.Addr(), err)
	}

	return &Cache{
		client: client,
		logger: logger.With().Str("component", "redis_cache").Logger(),
	}, nil
}

// Get retrieves a value by key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrCacheMiss
	}
	if err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("redis GET failed")
		return nil, unavailable("get", key, err)
	}
	return val, nil
}

// Set stores a value with an optional TTL. A zero TTL never expires.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("redis SET failed")
		return unavailable("set", key, err)
	}
	return nil
}

// Delete removes a value by key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return unavailable("del", key, err)
	}
	return nil
}

// Exists checks if a key exists.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, unavailable("exists", key, err)
	}
	return n > 0, nil
}

// Close releases the connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", repository.ErrCacheUnavailable, op, key, err)
}

// Ensure Cache implements repository.Cache.
var _ repository.Cache = (*Cache)(nil)
