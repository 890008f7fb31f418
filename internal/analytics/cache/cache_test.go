package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/redis"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (f *fakeRunner) Normalize(kind analytics.Kind, tr analytics.TimeRange, opts analytics.Options) (analytics.Options, error) {
	if opts.Limit == 0 {
		opts.Limit = 10
	}
	return opts, nil
}

func (f *fakeRunner) Run(ctx context.Context, kind analytics.Kind, tr analytics.TimeRange, opts analytics.Options) (any, error) {
	f.calls.Add(1)
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return []analytics.TopSearchResult{{Query: "golang", Count: int64(opts.Limit)}}, nil
}

var window = analytics.TimeRange{
	Start: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC),
}

func newCached(t *testing.T, next Runner) (*Cached, *miniredis.Miniredis, *prometheus.Registry) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := pkgredis.NewClient(config.RedisConfig{Addr: mr.Addr(), PoolSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	reg := prometheus.NewRegistry()
	return New(next, client, time.Minute, metrics.New(reg)), mr, reg
}

func counter(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func TestRunCachesResult(t *testing.T) {
	runner := &fakeRunner{}
	c, mr, reg := newCached(t, runner)
	ctx := context.Background()

	first, err := c.Run(ctx, analytics.KindTopSearches, window, analytics.Options{})
	require.NoError(t, err)
	second, err := c.Run(ctx, analytics.KindTopSearches, window, analytics.Options{Limit: 10})
	require.NoError(t, err)

	assert.Equal(t, first, second, "default and explicit limit share an entry")
	assert.IsType(t, []analytics.TopSearchResult{}, second)
	assert.Equal(t, int32(1), runner.calls.Load())
	assert.Equal(t, 1.0, counter(t, reg, "analytics_cache_hits_total"))
	assert.Equal(t, 2.0, counter(t, reg, "analytics_cache_misses_total"), "outer and in-flight lookups")

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, time.Minute, mr.TTL(keys[0]))
}

func TestRunKeysOnOptions(t *testing.T) {
	runner := &fakeRunner{}
	c, _, _ := newCached(t, runner)
	ctx := context.Background()

	_, err := c.Run(ctx, analytics.KindTopSearches, window, analytics.Options{Limit: 5})
	require.NoError(t, err)
	_, err = c.Run(ctx, analytics.KindTopSearches, window, analytics.Options{Limit: 6})
	require.NoError(t, err)
	shifted := window
	shifted.End = shifted.End.Add(time.Millisecond)
	_, err = c.Run(ctx, analytics.KindTopSearches, shifted, analytics.Options{Limit: 5})
	require.NoError(t, err)

	assert.Equal(t, int32(3), runner.calls.Load())
}

func TestConcurrentMissesCollapse(t *testing.T) {
	runner := &fakeRunner{delay: 100 * time.Millisecond}
	c, _, _ := newCached(t, runner)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Run(context.Background(), analytics.KindTopSearches, window, analytics.Options{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestCancelledCallerDoesNotFailSharedCall(t *testing.T) {
	runner := &fakeRunner{delay: 300 * time.Millisecond}
	c, mr, _ := newCached(t, runner)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Run(firstCtx, analytics.KindTopSearches, window, analytics.Options{})
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return runner.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		v   any
		err error
	}
	second := make(chan result, 1)
	go func() {
		v, err := c.Run(context.Background(), analytics.KindTopSearches, window, analytics.Options{})
		second <- result{v, err}
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-firstErr, context.Canceled)
	res := <-second
	require.NoError(t, res.err)
	assert.NotEmpty(t, res.v)
	assert.Equal(t, int32(1), runner.calls.Load())
	assert.Len(t, mr.Keys(), 1, "detached call still fills the cache")
}

func TestErrorsAreNotCached(t *testing.T) {
	runner := &fakeRunner{err: errors.New("boom")}
	c, mr, _ := newCached(t, runner)

	_, err := c.Run(context.Background(), analytics.KindTopSearches, window, analytics.Options{})
	require.Error(t, err)
	assert.Empty(t, mr.Keys())
}

func TestRedisOutageFallsThrough(t *testing.T) {
	runner := &fakeRunner{}
	c, mr, _ := newCached(t, runner)
	mr.Close()

	v, err := c.Run(context.Background(), analytics.KindTopSearches, window, analytics.Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, v)
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestInvalidate(t *testing.T) {
	runner := &fakeRunner{}
	c, mr, _ := newCached(t, runner)
	ctx := context.Background()

	_, err := c.Run(ctx, analytics.KindTopSearches, window, analytics.Options{})
	require.NoError(t, err)
	mr.Set("unrelated", "x")

	require.NoError(t, c.Invalidate(ctx))
	assert.Equal(t, []string{"unrelated"}, mr.Keys())
}
