// internal/common/database/redis.go
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"query-orchestrator/internal/common/config"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by GetJSON when the key does not exist.
var ErrCacheMiss = errors.New("cache miss")

// RedisClient wraps the Redis client
type RedisClient struct {
	Client *redis.Client
}

// NewRedis creates a new Redis client
func NewRedis(cfg config.RedisConfig) (*RedisClient, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is empty")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	return &RedisClient{Client: rdb}, nil
}

// NewRedisFromClient wraps an existing client, typically one pointed at miniredis.
func NewRedisFromClient(c *redis.Client) *RedisClient {
	return &RedisClient{Client: c}
}

// Ping tests the Redis connection
func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (c *RedisClient) Close() error {
	if c.Client != nil {
		return c.Client.Close()
	}
	return nil
}

// GetJSON decodes the value stored at key into dst.
func (c *RedisClient) GetJSON(ctx context.Context, key string, dst interface{}) error {
	val, err := c.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(val, dst)
}

// SetJSON stores v as JSON at key with the given expiration.
func (c *RedisClient) SetJSON(ctx context.Context, key string, v interface{}, expiration time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, key, data, expiration).Err()
}
