// Package cache holds the Redis-backed cache for latest compliance reports.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"truconn/internal/compliance/models"
	id "truconn/pkg/domain"
)

const (
	reportKeyPrefix = "compliance:report:"
	// DefaultTTL bounds how stale a cached report can be when an invalidation
	// is lost.
	DefaultTTL = 2 * time.Minute
)

// RedisReportCache caches Latest reports per organization and window. Every
// cached key is tracked in a per-organization set so Invalidate can drop all
// windows at once. A per-organization generation counter, bumped by
// Invalidate, guards Set against writing a report read before the last
// invalidation. The counter has no TTL.
type RedisReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

// Option configures a RedisReportCache.
type Option func(*RedisReportCache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *RedisReportCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func NewRedisReportCache(client *redis.Client, opts ...Option) *RedisReportCache {
	c := &RedisReportCache{client: client, ttl: DefaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func reportKey(orgID id.OrganizationID, windowDays int) string {
	return fmt.Sprintf("%s%s:%d", reportKeyPrefix, orgID.String(), windowDays)
}

func indexKey(orgID id.OrganizationID) string {
	return reportKeyPrefix + orgID.String() + ":keys"
}

func generationKey(orgID id.OrganizationID) string {
	return reportKeyPrefix + orgID.String() + ":gen"
}

// Generation returns the organization's current generation, zero if it was
// never invalidated.
func (c *RedisReportCache) Generation(ctx context.Context, orgID id.OrganizationID) (int64, error) {
	gen, err := readGeneration(ctx, c.client, orgID)
	if err != nil {
		return 0, fmt.Errorf("read cache generation: %w", err)
	}
	return gen, nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readGeneration(ctx context.Context, cmd getter, orgID id.OrganizationID) (int64, error) {
	gen, err := cmd.Get(ctx, generationKey(orgID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Get returns (nil, nil) on a miss.
func (c *RedisReportCache) Get(ctx context.Context, orgID id.OrganizationID, windowDays int) (*models.Report, error) {
	raw, err := c.client.Get(ctx, reportKey(orgID, windowDays)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached report: %w", err)
	}
	var report models.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("decode cached report: %w", err)
	}
	return &report, nil
}

// Set caches report under WATCH on the generation key. It is a silent no-op
// when the generation moved past gen, before or during the write.
func (c *RedisReportCache) Set(ctx context.Context, orgID id.OrganizationID, windowDays int, gen int64, report *models.Report) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	key := reportKey(orgID, windowDays)
	idx := indexKey(orgID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readGeneration(ctx, tx, orgID)
		if err != nil {
			return err
		}
		if current != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, c.ttl)
			pipe.SAdd(ctx, idx, key)
			pipe.Expire(ctx, idx, c.ttl)
			return nil
		})
		return err
	}, generationKey(orgID))
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cache report: %w", err)
	}
	return nil
}

// Invalidate advances the generation and drops every cached window for the
// organization.
func (c *RedisReportCache) Invalidate(ctx context.Context, orgID id.OrganizationID) error {
	idx := indexKey(orgID)
	keys, err := c.client.SMembers(ctx, idx).Result()
	if err != nil {
		return fmt.Errorf("list cached reports: %w", err)
	}
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(orgID))
		pipe.Del(ctx, append(keys, idx)...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate cached reports: %w", err)
	}
	return nil
}
