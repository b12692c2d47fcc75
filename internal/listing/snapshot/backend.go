package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Backend stores one serialized listing per key.
type Backend interface {
	Get(ctx context.Context, key string) ([]string, bool, error)
	Set(ctx context.Context, key string, fqdns []string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

const defaultCleanupInterval = 5 * time.Minute

// MemoryBackend keeps listings in process.
type MemoryBackend struct {
	cache *gocache.Cache
}

func NewMemoryBackend(defaultTTL time.Duration) *MemoryBackend {
	return &MemoryBackend{cache: gocache.New(defaultTTL, defaultCleanupInterval)}
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]string, bool, error) {
	value, found := b.cache.Get(key)
	if !found {
		return nil, false, nil
	}
	fqdns, ok := value.([]string)
	if !ok {
		return nil, false, fmt.Errorf("snapshot cache entry %q has type %T", key, value)
	}
	return append([]string{}, fqdns...), true, nil
}

func (b *MemoryBackend) Set(_ context.Context, key string, fqdns []string, ttl time.Duration) error {
	b.cache.Set(key, append([]string{}, fqdns...), ttl)
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.cache.Delete(key)
	return nil
}

// Redis key prefix for snapshot listings
const redisKeyPrefix = "regwatch:snapshot:"

// RedisBackend shares listings across instances.
type RedisBackend struct {
	client *redis.Client
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]string, bool, error) {
	raw, err := b.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get snapshot listing: %w", err)
	}
	var fqdns []string
	if err := json.Unmarshal(raw, &fqdns); err != nil {
		return nil, false, fmt.Errorf("decode snapshot listing: %w", err)
	}
	return fqdns, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, fqdns []string, ttl time.Duration) error {
	raw, err := json.Marshal(fqdns)
	if err != nil {
		return fmt.Errorf("encode snapshot listing: %w", err)
	}
	if err := b.client.Set(ctx, redisKeyPrefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("set snapshot listing: %w", err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("delete snapshot listing: %w", err)
	}
	return nil
}
