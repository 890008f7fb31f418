package redis

import (
	"context"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewClient(config.RedisConfig{Addr: mr.Addr(), PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestGetSetDel(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
	assert.Equal(t, time.Minute, mr.TTL("k"))

	require.NoError(t, c.Del(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.True(t, IsNilError(err))
}

func TestFlushByPattern(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	mr.Set("agg:1", "a")
	mr.Set("agg:2", "b")
	mr.Set("other", "c")

	n, err := c.FlushByPattern(ctx, "agg:*")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.True(t, mr.Exists("other"))
	assert.False(t, mr.Exists("agg:1"))
}

func TestNewClientUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClient(config.RedisConfig{Addr: addr, DialTimeout: 200 * time.Millisecond})
	assert.Error(t, err)
}
