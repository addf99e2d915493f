package identity

import (
	"context"
	"errors"
	"time"

	"github.com/instapod/platform/pkg/common/logger"
	"github.com/redis/go-redis/v9"
)

type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisCache stores resolved identities under "<prefix>:<raw id>".
type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "identity"
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.client.Get(ctx, c.prefix+":"+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+":"+key, value, ttl).Err()
}

// CachedResolver memoizes successful lookups. Cache failures are logged and
// never fail a resolution.
type CachedResolver struct {
	next  Resolver
	cache Cache
	ttl   time.Duration
}

func NewCachedResolver(next Resolver, cache Cache, ttl time.Duration) *CachedResolver {
	return &CachedResolver{next: next, cache: cache, ttl: ttl}
}

func (c *CachedResolver) Resolve(ctx context.Context, rawID string) (string, error) {
	if name, ok, err := c.cache.Get(ctx, rawID); err != nil {
		logger.Log.WithError(err).WithField("postid", rawID).Warn("identity cache read failed")
	} else if ok {
		return name, nil
	}

	name, err := c.next.Resolve(ctx, rawID)
	if err != nil {
		return "", err
	}

	if err := c.cache.Set(ctx, rawID, name, c.ttl); err != nil {
		logger.Log.WithError(err).WithField("postid", rawID).Warn("identity cache write failed")
	}
	return name, nil
}
