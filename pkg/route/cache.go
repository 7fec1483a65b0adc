package route

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "commutealarm:route:"

// Cache keeps recent estimates so that repeated requests for the same trip
// skip the upstream call.
type Cache interface {
	Get(ctx context.Context, key string) (int, bool)
	Set(ctx context.Context, key string, minutes int)
}

type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (int, bool) {
	value, err := c.client.Get(ctx, cacheKeyPrefix+key).Result()
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return minutes, true
}

func (c *RedisCache) Set(ctx context.Context, key string, minutes int) {
	_ = c.client.Set(ctx, cacheKeyPrefix+key, minutes, c.ttl).Err()
}

// cacheKey rounds coordinates to about a meter.
func cacheKey(startLon, startLat, endLon, endLat float64) string {
	return fmt.Sprintf("%.5f,%.5f:%.5f,%.5f", startLon, startLat, endLon, endLat)
}
