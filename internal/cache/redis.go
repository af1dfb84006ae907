package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "sourcing:v1:"

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Redis stores entries in Redis with native key expiry.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to Redis. The connection is verified lazily on first use.
func NewRedis(cfg RedisConfig) *Redis {
	return NewRedisWithClient(redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}))
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Get implements Cache.
func (r *Redis) Get(ctx context.Context, key string) (*Entry, bool, error) {
	b, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("redis", "get", err)
	}
	e, err := decode(b)
	if err != nil {
		return nil, false, unavailable("redis", "decode", err)
	}
	return e, true, nil
}

// Set implements Cache. Non-positive TTLs are not stored.
func (r *Redis) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	b, err := encode(entry)
	if err != nil {
		return unavailable("redis", "encode", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+key, b, ttl).Err(); err != nil {
		return unavailable("redis", "set", err)
	}
	return nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return unavailable("redis", "ping", err)
	}
	return nil
}

// Close implements Cache.
func (r *Redis) Close() error { return r.client.Close() }
