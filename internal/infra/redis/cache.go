package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/botrelay/internal/core/domain"
	"github.com/vietddude/botrelay/internal/infra/storage"
)

// ResultCache implements storage.ResultCache on Redis string keys with TTL.
type ResultCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewResultCache creates a Redis-backed result cache. ttl <= 0 keeps entries forever.
func NewResultCache(client *Client, ttl time.Duration) *ResultCache {
	return &ResultCache{rdb: client.rdb, ttl: ttl}
}

// Key helpers
func resultKey(command, key string) string {
	return "botrelay:result:" + storage.CacheKey(command, key)
}

// Find returns the cached result for the command and key.
func (c *ResultCache) Find(ctx context.Context, command, key string) (*domain.AggregatedResult, bool, error) {
	data, err := c.rdb.Get(ctx, resultKey(command, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get failed: %w", err)
	}

	var res domain.AggregatedResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false, fmt.Errorf("decode cached result: %w", err)
	}
	return &res, true, nil
}

// Save caches a result.
func (c *ResultCache) Save(ctx context.Context, command, key string, res *domain.AggregatedResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	ttl := c.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := c.rdb.Set(ctx, resultKey(command, key), data, ttl).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}
