package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisDialTimeout = 5 * time.Second

// RedisBackend stores derived data in Redis under a key prefix, so several
// clients can share one handler cache.
type RedisBackend struct {
	rdb    *redis.Client
	prefix string
}

// DialRedis connects to url (redis://[:password@]host:port/db) and checks
// the connection before returning.
func DialRedis(ctx context.Context, url, prefix string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	opts.DialTimeout = redisDialTimeout
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.MinIdleConns = 1

	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return &RedisBackend{rdb: rdb, prefix: prefix}, nil
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return b, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, r.prefix+key, value, ttl).Err()
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, r.prefix+key).Err()
}

// GetMultiple reads all keys in one MGET round trip.
func (r *RedisBackend) GetMultiple(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, r.prefix+k)
	}
	vals, err := r.rdb.MGet(ctx, full...).Result()
	if err != nil {
		return nil, err
	}
	found := make(map[string][]byte)
	for i, v := range vals {
		// MGET yields nil for missing keys
		if s, ok := v.(string); ok {
			found[keys[i]] = []byte(s)
		}
	}
	return found, nil
}

// SetMultiple writes items in one pipelined round trip. MSET has no TTL.
func (r *RedisBackend) SetMultiple(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	if len(items) == 0 {
		return nil
	}
	_, err := r.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for k, v := range items {
			p.Set(ctx, r.prefix+k, v, ttl)
		}
		return nil
	})
	return err
}

func (r *RedisBackend) Close() error {
	return r.rdb.Close()
}

// NewBackend picks Redis when redisURL is set and answers a ping, memory
// otherwise. The second value is "redis" or "memory".
func NewBackend(ctx context.Context, redisURL string, cfg CacheConfig) (Backend, string) {
	if redisURL == "" {
		return NewMemoryCache(cfg.MemoryMaxSize, cfg.CleanupInterval), "memory"
	}
	rb, err := DialRedis(ctx, redisURL, cfg.KeyPrefix)
	if err != nil {
		slog.Warn("cache: redis unavailable, falling back to memory", "error", err)
		return NewMemoryCache(cfg.MemoryMaxSize, cfg.CleanupInterval), "memory"
	}
	slog.Info("cache: using redis", "prefix", cfg.KeyPrefix)
	return rb, "redis"
}
