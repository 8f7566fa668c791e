package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Redis is the distributed value tier sitting between the in-process map
// and the persistent freshness ledger. It is optional; a nil *Redis on the
// Manager degrades the fabric to two tiers.
type Redis struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedis connects and pings the distributed tier.
func NewRedis(ctx context.Context, addr, password string, db int, prefix string, logger *zap.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Redis{client: client, prefix: prefix, logger: logger}, nil
}

func (r *Redis) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

// Get returns the stored bytes and the remaining TTL. A missing key or
// any transport failure reads as a miss; this tier never fails a read.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, time.Duration, bool) {
	k := r.key(key)
	data, err := r.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, 0, false
	}
	if err != nil {
		r.logger.Warn("Redis get failed", zap.Error(err), zap.String("key", key))
		return nil, 0, false
	}

	ttl, err := r.client.PTTL(ctx, k).Result()
	if err != nil || ttl <= 0 {
		ttl = 0
	}
	return data, ttl, true
}

// Set stores bytes under the key with the given TTL.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.key(key), value, ttl).Err()
}

// Delete removes the key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

// Clear removes every key under the tier's prefix.
func (r *Redis) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.key("*"), 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
