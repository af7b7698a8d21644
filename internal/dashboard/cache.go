package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "compliance/pkg/domain"
)

const cacheKeyPrefix = "compliance:dashboard:"

// RedisCache keeps stats in Redis for a short TTL.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, tenantID id.TenantID) (*Stats, error) {
	raw, err := c.client.Get(ctx, cacheKey(tenantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dashboard cache: %w", err)
	}
	var stats Stats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, fmt.Errorf("decode dashboard cache: %w", err)
	}
	return &stats, nil
}

func (c *RedisCache) Set(ctx context.Context, tenantID id.TenantID, stats *Stats) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encode dashboard cache: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(tenantID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set dashboard cache: %w", err)
	}
	return nil
}

func cacheKey(tenantID id.TenantID) string {
	return cacheKeyPrefix + tenantID.String()
}
