package retrieve

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/index"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/redis"
)

// KeyPrefix namespaces candidate cache keys.
const KeyPrefix = "candidates:"

// Store is the key-value backend of the cache. *redis.Client satisfies it;
// Get must return redis.ErrMiss for absent keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type cachedHit struct {
	Record company.CompanyRecord `json:"record"`
	Score  float64               `json:"score"`
}

// Cache memoizes index lookups per (normalized name, k). Concurrent misses
// for the same key share one index call.
type Cache struct {
	store  Store
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCache creates a Cache over store.
func NewCache(store Store, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:  store,
		ttl:    ttl,
		logger: logger.With("component", "candidate-cache"),
	}
}

// Get returns the cached hits for the key, if present and decodable. Store
// errors count as misses.
func (c *Cache) Get(ctx context.Context, normalized string, k int) ([]index.Hit, bool) {
	key := buildKey(normalized, k)
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, pkgredis.ErrMiss) {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var cached []cachedHit
	if err := json.Unmarshal(data, &cached); err != nil {
		c.logger.Warn("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	hits := make([]index.Hit, len(cached))
	for i, h := range cached {
		hits[i] = index.Hit{Record: h.Record, Score: h.Score}
	}
	return hits, true
}

// Set stores hits under the key. Failures are logged and otherwise ignored.
func (c *Cache) Set(ctx context.Context, normalized string, k int, hits []index.Hit) {
	key := buildKey(normalized, k)
	cached := make([]cachedHit, len(hits))
	for i, h := range hits {
		cached[i] = cachedHit{Record: h.Record, Score: h.Score}
	}
	data, err := json.Marshal(cached)
	if err != nil {
		c.logger.Warn("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns cached hits or calls compute once per key across
// concurrent callers. Errors are never cached. The bool reports a cache hit.
// compute runs detached from any single caller's cancellation and must bound
// its own runtime; each caller stops waiting when its own ctx is done.
func (c *Cache) GetOrCompute(ctx context.Context, normalized string, k int, compute func(context.Context) ([]index.Hit, error)) ([]index.Hit, bool, error) {
	if hits, ok := c.Get(ctx, normalized, k); ok {
		return hits, true, nil
	}
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(buildKey(normalized, k), func() (any, error) {
		hits, err := compute(detached)
		if err != nil {
			return nil, err
		}
		c.Set(detached, normalized, k, hits)
		return hits, nil
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.([]index.Hit), false, nil
	}
}

// Invalidate drops every cached candidate list. Run it after re-ingesting
// records.
func (c *Cache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.store.FlushByPattern(ctx, KeyPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("invalidating candidate cache: %w", err)
	}
	c.logger.Info("candidate cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

// Stats returns the hit and miss counts since creation.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func buildKey(normalized string, k int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|k=%d", normalized, k)))
	return fmt.Sprintf("%s%x", KeyPrefix, sum[:16])
}
