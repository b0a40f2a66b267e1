package bucket

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"truconn/internal/ratelimit/models"
)

// RedisBucketStore keeps one sorted set per key, scored by request time in
// microseconds, so every replica shares the same windows.
type RedisBucketStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisBucketStore(client *redis.Client) *RedisBucketStore {
	return &RedisBucketStore{client: client, now: time.Now}
}

// Allow trims expired members, counts the rest and admits the request when
// there is room. Trim and count run in one MULTI; the add is a second round
// trip, so concurrent callers may overshoot the limit by a few requests.
func (s *RedisBucketStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	now := s.now()
	nowScore := now.UnixMicro()
	cutoff := now.Add(-window).UnixMicro()

	var count *redis.IntCmd
	var oldest *redis.ZSliceCmd
	if _, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
		count = pipe.ZCard(ctx, key)
		oldest = pipe.ZRangeWithScores(ctx, key, 0, 0)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("read rate limit bucket: %w", err)
	}

	resetAt := now.Add(window)
	if zs := oldest.Val(); len(zs) > 0 {
		resetAt = time.UnixMicro(int64(zs[0].Score)).Add(window)
	}

	current := int(count.Val())
	if current >= limit {
		return &models.RateLimitResult{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retryAfter(now, resetAt),
		}, nil
	}

	if _, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(nowScore), Member: uuid.NewString()})
		pipe.PExpire(ctx, key, window)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("record rate limit hit: %w", err)
	}
	if current == 0 {
		resetAt = now.Add(window)
	}
	return &models.RateLimitResult{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - current - 1,
		ResetAt:   resetAt,
	}, nil
}

// Reset clears the counter for key.
func (s *RedisBucketStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("reset rate limit bucket: %w", err)
	}
	return nil
}
