package evaluator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/pitabwire/quotecfg/model"
)

// Cache stores evaluation reports. Because Evaluate is pure, a report is
// valid for as long as the configuration revision in its key exists.
type Cache interface {
	Get(ctx context.Context, key string) (model.AvailabilityReport, bool, error)
	Set(ctx context.Context, key string, report model.AvailabilityReport) error
	// InvalidateConfig drops every entry for the configuration.
	InvalidateConfig(ctx context.Context, configID string) error
	HealthCheck(ctx context.Context) error
}

// CacheKey builds the cache key for a configuration revision and selection.
// Format: "eval:{configId}:{version}:{updatedAt}:{selectionDigest}".
func CacheKey(cfg model.CalculatorConfig, selections model.Selections) string {
	return fmt.Sprintf("%s%d:%d:%s", configPrefix(cfg.ID), cfg.Version, cfg.UpdatedAt.UnixNano(), SelectionDigest(selections))
}

func configPrefix(configID string) string {
	return "eval:" + configID + ":"
}

// SelectionDigest hashes selections in canonical form: components sorted,
// option ids sorted and deduplicated, empty selections dropped.
func SelectionDigest(selections model.Selections) string {
	comps := make([]string, 0, len(selections))
	for c, opts := range selections {
		if len(opts) > 0 {
			comps = append(comps, c)
		}
	}
	sort.Strings(comps)

	h := sha256.New()
	for _, c := range comps {
		opts := append([]string{}, selections[c]...)
		sort.Strings(opts)
		h.Write([]byte(c))
		h.Write([]byte{0})
		prev := ""
		for i, o := range opts {
			if i > 0 && o == prev {
				continue
			}
			h.Write([]byte(o))
			h.Write([]byte{0})
			prev = o
		}
		h.Write([]byte{1})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// --- NopCache ---

// NopCache never stores anything.
type NopCache struct{}

// Get always misses.
func (NopCache) Get(context.Context, string) (model.AvailabilityReport, bool, error) {
	return model.AvailabilityReport{}, false, nil
}

// Set discards the report.
func (NopCache) Set(context.Context, string, model.AvailabilityReport) error { return nil }

// InvalidateConfig does nothing.
func (NopCache) InvalidateConfig(context.Context, string) error { return nil }

// HealthCheck always succeeds.
func (NopCache) HealthCheck(context.Context) error { return nil }

// --- MemoryCache ---

// MemoryCache is a bounded in-process LRU with per-entry TTL.
type MemoryCache struct {
	lru *expirable.LRU[string, model.AvailabilityReport]
}

// NewMemoryCache creates a MemoryCache holding at most size entries.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{lru: expirable.NewLRU[string, model.AvailabilityReport](size, nil, ttl)}
}

// Get returns a cached report.
func (c *MemoryCache) Get(_ context.Context, key string) (model.AvailabilityReport, bool, error) {
	r, ok := c.lru.Get(key)
	return r, ok, nil
}

// Set stores a report.
func (c *MemoryCache) Set(_ context.Context, key string, report model.AvailabilityReport) error {
	c.lru.Add(key, report)
	return nil
}

// InvalidateConfig removes all entries of the configuration.
func (c *MemoryCache) InvalidateConfig(_ context.Context, configID string) error {
	prefix := configPrefix(configID)
	for _, k := range c.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.lru.Remove(k)
		}
	}
	return nil
}

// HealthCheck always succeeds.
func (c *MemoryCache) HealthCheck(context.Context) error { return nil }

// Len returns the number of cached entries. For testing.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// --- RedisCache ---

// RedisCache is a Redis-backed Cache with TTL, shared between instances.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed cache.
func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Get looks up a cached report in Redis.
func (c *RedisCache) Get(ctx context.Context, key string) (model.AvailabilityReport, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return model.AvailabilityReport{}, false, nil
	}
	if err != nil {
		return model.AvailabilityReport{}, false, fmt.Errorf("redis get %q: %w", key, err)
	}

	var report model.AvailabilityReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return model.AvailabilityReport{}, false, fmt.Errorf("unmarshal report %q: %w", key, err)
	}
	return report, true, nil
}

// Set saves a report in Redis with TTL.
func (c *RedisCache) Set(ctx context.Context, key string, report model.AvailabilityReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// InvalidateConfig deletes every key of the configuration.
func (c *RedisCache) InvalidateConfig(ctx context.Context, configID string) error {
	iter := c.client.Scan(ctx, 0, configPrefix(configID)+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan %q: %w", configID, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", configID, err)
	}
	return nil
}

// HealthCheck pings Redis.
func (c *RedisCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
