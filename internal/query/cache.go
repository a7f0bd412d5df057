package query

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/blockdex/blockdex/pkg/metrics"
	"github.com/blockdex/blockdex/pkg/resilience"

	pkgredis "github.com/blockdex/blockdex/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const cacheKeyPrefix = "bdx:"

// PostingCache fronts an Accessor's index.bin reads with a Redis-backed raw
// byte cache, collapsing concurrent requests for the same term through a
// singleflight group. It never changes the decoded result of a query: a
// cache hit and a cache miss return byte-identical posting lists. A circuit
// breaker wraps every Redis round-trip so a dead Redis degrades openList to
// disk-only reads instead of blocking on a failing dependency.
type PostingCache struct {
	client    *pkgredis.Client
	ttlSecond int
	indexPath string
	group     singleflight.Group
	breaker   *resilience.CircuitBreaker
	metrics   *metrics.Metrics
	logger    *slog.Logger
	hits      atomic.Int64
	misses    atomic.Int64
}

// WithMetrics attaches a Metrics registry so cache hits/misses and circuit
// breaker transitions are exported on /metrics. Returns c for chaining.
func (c *PostingCache) WithMetrics(m *metrics.Metrics) *PostingCache {
	c.metrics = m
	return c
}

// NewPostingCache creates a PostingCache for the index at indexPath, storing
// entries for ttlSeconds.
func NewPostingCache(client *pkgredis.Client, indexPath string, ttlSeconds int) *PostingCache {
	return &PostingCache{
		client:    client,
		ttlSecond: ttlSeconds,
		indexPath: indexPath,
		breaker:   resilience.NewCircuitBreaker("posting-cache-redis", resilience.CircuitBreakerConfig{}),
		logger:    slog.Default().With("component", "posting-cache"),
	}
}

// OpenList returns a PostingList for term, preferring a cached raw byte
// buffer over an index.bin read. On a cache miss it reads through the
// accessor and populates the cache.
func (c *PostingCache) OpenList(ctx context.Context, a *Accessor, term string) (*PostingList, error) {
	key := c.buildKey(term)
	if buf, ok := c.getRaw(ctx, key); ok {
		list, err := a.BuildPostingList(term, buf)
		if err == nil {
			c.hits.Add(1)
			c.recordHit()
			return list, nil
		}
		c.logger.Error("cached posting buffer rejected, falling back to disk", "term", term, "error", err)
	}
	c.misses.Add(1)
	c.recordMiss()

	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		list, err := a.OpenList(term)
		if err != nil {
			return nil, err
		}
		c.setRaw(ctx, key, list.buf)
		return list.buf, nil
	})
	if err != nil {
		return nil, err
	}
	// Collapsed callers share the read-only bytes but each gets its own
	// cursor, since a PostingList carries per-caller position state.
	return a.BuildPostingList(term, val.([]byte))
}

func (c *PostingCache) getRaw(ctx context.Context, key string) ([]byte, bool) {
	if c.breaker.GetState() == resilience.StateOpen {
		return nil, false
	}
	var data string
	err := c.breaker.Execute(func() error {
		var getErr error
		data, getErr = c.client.Get(ctx, key)
		if getErr != nil && pkgredis.IsNilError(getErr) {
			return nil // a cache miss is not a Redis failure
		}
		return getErr
	})
	if err != nil {
		c.logger.Error("posting cache get failed", "key", key, "error", err)
		return nil, false
	}
	if data == "" {
		return nil, false
	}
	return []byte(data), true
}

func (c *PostingCache) setRaw(ctx context.Context, key string, buf []byte) {
	err := c.breaker.Execute(func() error {
		return c.client.Set(ctx, key, buf, secondsToDuration(c.ttlSecond))
	})
	if err != nil {
		c.logger.Error("posting cache set failed", "key", key, "error", err)
	}
}

// Stats returns cumulative hit/miss counters.
func (c *PostingCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *PostingCache) recordHit() {
	if c.metrics == nil {
		return
	}
	c.metrics.PostingCacheHitsTotal.Inc()
	c.metrics.CircuitBreakerState.WithLabelValues("posting-cache-redis").Set(float64(c.breaker.GetState()))
}

func (c *PostingCache) recordMiss() {
	if c.metrics == nil {
		return
	}
	c.metrics.PostingCacheMissTotal.Inc()
	c.metrics.CircuitBreakerState.WithLabelValues("posting-cache-redis").Set(float64(c.breaker.GetState()))
}

func (c *PostingCache) buildKey(term string) string {
	raw := cacheKeyPrefix + c.indexPath + ":" + term
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", cacheKeyPrefix, hash[:16])
}

func secondsToDuration(seconds int) time.Duration {
	if seconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(seconds) * time.Second
}
