package bucket

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"regwatch/internal/ratelimit/models"
)

// RedisBucketStore counts requests in fixed windows shared by every replica.
type RedisBucketStore struct {
	client *redis.Client
}

func NewRedisBucketStore(client *redis.Client) *RedisBucketStore {
	return &RedisBucketStore{client: client}
}

func (s *RedisBucketStore) Allow(ctx context.Context, key string, limit models.Limit) (*models.RateLimitResult, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, limit.Window)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("rate limit %s: %w", key, err)
	}

	remainingTTL := ttl.Val()
	if remainingTTL <= 0 {
		remainingTTL = limit.Window
	}
	resetAt := time.Now().Add(remainingTTL)
	count := int(incr.Val())
	if count <= limit.Requests {
		return &models.RateLimitResult{
			Allowed:   true,
			Limit:     limit.Requests,
			Remaining: limit.Requests - count,
			ResetAt:   resetAt,
		}, nil
	}
	return &models.RateLimitResult{
		Allowed:    false,
		Limit:      limit.Requests,
		ResetAt:    resetAt,
		RetryAfter: int(math.Ceil(remainingTTL.Seconds())),
	}, nil
}
