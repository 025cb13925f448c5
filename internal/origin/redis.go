package origin

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/muandane/slugcache/internal/resolver"
)

const DefaultRedisKeyPrefix = "url:"

// RedisClient is the subset of redis.Cmdable the origin needs.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Redis resolves slugs from string keys {prefix}{slug}.
type Redis struct {
	client RedisClient
	prefix string
}

func NewRedis(client RedisClient, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Lookup(ctx context.Context, slug string) (string, error) {
	key := r.prefix + slug
	dest, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("key %s: %w", key, resolver.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return dest, nil
}
