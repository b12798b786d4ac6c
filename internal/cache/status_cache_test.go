package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/greenchain/ccrs/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*StatusCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewWithClient(rdb, time.Second*30)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestStatusCache(t *testing.T) {
	ctx := context.Background()

	t.Run("set get invalidate", func(t *testing.T) {
		c, _ := newTestCache(t)

		_, ok := c.Get(ctx, "prj-1")
		assert.False(t, ok)

		payload := []byte(`{"projectId":"prj-1","state":"registered"}`)
		c.Set(ctx, "prj-1", payload)

		got, ok := c.Get(ctx, "prj-1")
		require.True(t, ok)
		assert.Equal(t, payload, got)

		c.Invalidate(ctx, "prj-1")
		_, ok = c.Get(ctx, "prj-1")
		assert.False(t, ok)
	})

	t.Run("entries expire", func(t *testing.T) {
		c, mr := newTestCache(t)

		c.Set(ctx, "prj-1", []byte(`{}`))
		mr.FastForward(time.Second * 31)

		_, ok := c.Get(ctx, "prj-1")
		assert.False(t, ok)
	})

	t.Run("keys are namespaced per project", func(t *testing.T) {
		c, _ := newTestCache(t)

		c.Set(ctx, "prj-1", []byte(`{"state":"registered"}`))
		c.Set(ctx, "prj-2", []byte(`{"state":"submitted"}`))

		got, ok := c.Get(ctx, "prj-2")
		require.True(t, ok)
		assert.JSONEq(t, `{"state":"submitted"}`, string(got))
	})
}

func TestStatusCacheDisabled(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled config returns nil cache", func(t *testing.T) {
		assert.Nil(t, New(config.RedisConfig{Enabled: false}))
	})

	t.Run("nil cache is safe to use", func(t *testing.T) {
		var c *StatusCache

		_, ok := c.Get(ctx, "prj-1")
		assert.False(t, ok)

		c.Set(ctx, "prj-1", []byte(`{}`))
		c.Invalidate(ctx, "prj-1")
		assert.NoError(t, c.Close())
	})
}
