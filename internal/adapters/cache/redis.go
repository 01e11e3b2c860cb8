package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, parseErr := redis.ParseURL(redisURL)
		if parseErr != nil {
			return nil, fmt.Errorf("parse redis url: %w", parseErr)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisKeyCache holds the identity provider's signing-key document so that
// restarts and sibling replicas skip the discovery roundtrip.
type RedisKeyCache struct {
	client *redis.Client
}

func NewRedisKeyCache(client *redis.Client) *RedisKeyCache {
	return &RedisKeyCache{client: client}
}

func (c *RedisKeyCache) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := c.client.Get(ctx, "core:keys:"+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return raw, nil
}

func (c *RedisKeyCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return c.client.Set(ctx, "core:keys:"+key, value, ttl).Err()
}
