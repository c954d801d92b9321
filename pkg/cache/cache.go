// Package cache provides an optional Redis-backed read-through cache
// for Bubble Data API GET responses. Bubble sends neither ETag nor
// Expires headers, so entry freshness is caller policy via a fixed TTL.
package cache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache.
	ErrCacheMiss = errors.New("cache miss")
)

// Key identifies one cached GET response deterministically.
type Key struct {
	// TypeName is the normalized Bubble table name.
	TypeName string

	// ObjectID is set for by-id lookups, empty for list pages.
	ObjectID string

	// Params are the encoded list query parameters.
	Params url.Values
}

// String generates a deterministic cache key string.
// Format: bubble:typename[:id][:param=value:...]
//
// Example:
//
//	bubble:restaurant:constraints=[...]:cursor=0:limit=100
func (k Key) String() string {
	parts := []string{"bubble", k.TypeName}

	if k.ObjectID != "" {
		parts = append(parts, k.ObjectID)
	}

	if len(k.Params) > 0 {
		keys := make([]string, 0, len(k.Params))
		for key := range k.Params {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.Params.Get(key)))
		}
	}

	return strings.Join(parts, ":")
}

// Manager handles caching operations with Redis backend.
type Manager struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewManager creates a cache manager storing entries for ttl.
func NewManager(redisClient *redis.Client, ttl time.Duration) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		panic("cache ttl must be positive")
	}
	return &Manager{
		redis: redisClient,
		ttl:   ttl,
	}
}

// Get retrieves a cached response body by key.
// Returns ErrCacheMiss if the key doesn't exist.
func (m *Manager) Get(ctx context.Context, key Key) ([]byte, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	CacheHits.WithLabelValues("redis").Inc()
	return data, nil
}

// Set stores a response body. Redis evicts the entry after the TTL.
func (m *Manager) Set(ctx context.Context, key Key, body []byte) error {
	if err := m.redis.Set(ctx, key.String(), body, m.ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheSize.WithLabelValues("redis").Add(float64(len(body)))
	return nil
}

// Delete removes a cache entry.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// InvalidateType removes every cached entry for one table. Write
// operations call this so stale pages never outlive a known mutation.
func (m *Manager) InvalidateType(ctx context.Context, typeName string) error {
	pattern := fmt.Sprintf("bubble:%s*", typeName)

	var cursor uint64
	for {
		keys, next, err := m.redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			CacheErrors.WithLabelValues("invalidate").Inc()
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := m.redis.Del(ctx, keys...).Err(); err != nil {
				CacheErrors.WithLabelValues("invalidate").Inc()
				return fmt.Errorf("redis del: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// TTL returns the configured entry lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}
