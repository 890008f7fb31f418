// Package cache memoizes aggregation results in Redis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "analytics:"

// Runner is the aggregation engine being cached.
type Runner interface {
	Normalize(kind analytics.Kind, tr analytics.TimeRange, opts analytics.Options) (analytics.Options, error)
	Run(ctx context.Context, kind analytics.Kind, tr analytics.TimeRange, opts analytics.Options) (any, error)
}

// Cached wraps a Runner with a TTL cache. Redis errors fall through to the
// engine.
type Cached struct {
	next    Runner
	client  *pkgredis.Client
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(next Runner, client *pkgredis.Client, ttl time.Duration, m *metrics.Metrics) *Cached {
	return &Cached{
		next:    next,
		client:  client,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "analytics-cache"),
	}
}

func (c *Cached) Normalize(kind analytics.Kind, tr analytics.TimeRange, opts analytics.Options) (analytics.Options, error) {
	return c.next.Normalize(kind, tr, opts)
}

// Run answers from the cache when possible. Concurrent misses for the same
// key share one engine call. The shared call is detached from the caller
// that started it, so one caller going away never fails the others; each
// caller still stops waiting when its own ctx ends.
func (c *Cached) Run(ctx context.Context, kind analytics.Kind, tr analytics.TimeRange, opts analytics.Options) (any, error) {
	opts, err := c.next.Normalize(kind, tr, opts)
	if err != nil {
		return nil, err
	}
	key := buildKey(kind, tr, opts)
	if v, ok := c.get(ctx, kind, key); ok {
		return v, nil
	}
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if v, ok := c.get(shared, kind, key); ok {
			return v, nil
		}
		v, err := c.next.Run(shared, kind, tr, opts)
		if err != nil {
			return nil, err
		}
		c.set(shared, key, v)
		return v, nil
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops every cached aggregation.
func (c *Cached) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating analytics cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *Cached) get(ctx context.Context, kind analytics.Kind, key string) (any, bool) {
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	v, err := analytics.DecodeResult(kind, []byte(data))
	if err != nil {
		c.logger.Warn("cache entry unreadable", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return v, true
}

func (c *Cached) set(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

func (c *Cached) miss() {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func buildKey(kind analytics.Kind, tr analytics.TimeRange, opts analytics.Options) string {
	raw := fmt.Sprintf("%s|%d|%d|limit=%d|interval=%s",
		kind, tr.Start.UnixMilli(), tr.End.UnixMilli(), opts.Limit, opts.Interval)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, kind, hash[:16])
}
