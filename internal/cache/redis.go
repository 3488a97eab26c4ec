package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// RedisOptions configures the redis connection shared by every Redis cache.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// DialRedis connects to redis and verifies the connection.
func DialRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, eris.Wrapf(err, "cache: ping redis %s", opts.Addr)
	}
	return rdb, nil
}

// Redis is a Cache shared across processes. Values are stored as JSON and
// expire through the redis TTL. Redis failures are logged and behave as a
// miss so lookups fall through to the provider.
type Redis[T any] struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis creates a redis-backed cache whose keys are namespaced by prefix.
func NewRedis[T any](rdb *redis.Client, prefix string, ttl time.Duration) *Redis[T] {
	return &Redis[T]{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *Redis[T]) key(k string) string {
	return r.prefix + ":" + k
}

// Get returns the cached value for key.
func (r *Redis[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T
	data, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("cache: redis get failed", zap.String("key", r.key(key)), zap.Error(err))
		}
		return zero, false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		zap.L().Warn("cache: discarding undecodable entry", zap.String("key", r.key(key)), zap.Error(err))
		return zero, false
	}
	return v, true
}

// Set stores value under key with the cache TTL.
func (r *Redis[T]) Set(ctx context.Context, key string, value T) {
	data, err := json.Marshal(value)
	if err != nil {
		zap.L().Warn("cache: encode entry", zap.String("key", r.key(key)), zap.Error(err))
		return
	}
	if err := r.rdb.Set(ctx, r.key(key), data, r.ttl).Err(); err != nil {
		zap.L().Warn("cache: redis set failed", zap.String("key", r.key(key)), zap.Error(err))
	}
}

// Delete removes key.
func (r *Redis[T]) Delete(ctx context.Context, key string) {
	if err := r.rdb.Del(ctx, r.key(key)).Err(); err != nil {
		zap.L().Warn("cache: redis delete failed", zap.String("key", r.key(key)), zap.Error(err))
	}
}
