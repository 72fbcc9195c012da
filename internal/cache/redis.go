package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is the production cache backend. Every method swallows Redis
// errors and logs at debug level rather than surfacing them — a cache
// outage must never fail a write or a read path.
type RedisCache struct {
	c *redis.Client
}

// NewRedis dials Redis using a connection URL (e.g. redis://host:6379/0).
func NewRedis(url string) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisCache{c: redis.NewClient(opt)}, nil
}

// Ping checks connectivity at startup; callers may ignore a failure since
// the cache is advisory.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.c.Ping(ctx).Err()
}

func (r *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	v, err := r.c.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			slog.Debug("cache get failed", "key", key, "err", err)
		}
		return "", false
	}
	return v, true
}

func (r *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if err := r.c.Set(ctx, key, value, ttl).Err(); err != nil {
		slog.Debug("cache set failed", "key", key, "err", err)
	}
}

func (r *RedisCache) Delete(ctx context.Context, key string) {
	if err := r.c.Del(ctx, key).Err(); err != nil {
		slog.Debug("cache delete failed", "key", key, "err", err)
	}
}

func (r *RedisCache) Exists(ctx context.Context, key string) bool {
	n, err := r.c.Exists(ctx, key).Result()
	if err != nil {
		slog.Debug("cache exists failed", "key", key, "err", err)
		return false
	}
	return n > 0
}

func (r *RedisCache) Incr(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, bool) {
	pipe := r.c.TxPipeline()
	incr := pipe.IncrBy(ctx, key, delta)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Debug("cache incr failed", "key", key, "err", err)
		return 0, false
	}
	return incr.Val(), true
}
