package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Mindburn-Labs/coherence/pkg/contracts"
)

// DefaultKeyPrefix namespaces cache keys.
const DefaultKeyPrefix = "coherence:result:"

// RedisCache is a ResultCache shared between processes. Each entry is one
// JSON string written with a single SET, so readers never see a partial
// value.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache creates a cache backed by a Redis server.
func NewRedisCache(addr, password string, db int, ttl time.Duration) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisCacheWithClient(rdb, DefaultKeyPrefix, ttl)
}

// NewRedisCacheWithClient wraps an existing client. A zero ttl stores
// entries without expiry.
func NewRedisCacheWithClient(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: slog.Default().With("component", "cache"),
	}
}

func (c *RedisCache) key(projectID string) string {
	return c.prefix + projectID
}

// Ping checks connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Get(ctx context.Context, projectID string) (*contracts.CalculationResult, bool, error) {
	raw, err := c.client.Get(ctx, c.key(projectID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		c.logger.Warn("redis get failed", "project_id", projectID, "error", err)
		return nil, false, fmt.Errorf("redis get %s: %w", projectID, err)
	}
	var result contracts.CalculationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false, fmt.Errorf("corrupt cached result for %s: %w", projectID, err)
	}
	return &result, true, nil
}

func (c *RedisCache) Set(ctx context.Context, result *contracts.CalculationResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := c.client.Set(ctx, c.key(result.ProjectID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("redis set failed", "project_id", result.ProjectID, "error", err)
		return fmt.Errorf("redis set %s: %w", result.ProjectID, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, projectID string) error {
	if err := c.client.Del(ctx, c.key(projectID)).Err(); err != nil {
		c.logger.Warn("redis del failed", "project_id", projectID, "error", err)
		return fmt.Errorf("redis del %s: %w", projectID, err)
	}
	return nil
}

// Clear removes every key under the cache prefix.
func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close releases the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
