package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntry() *Entry {
	return &Entry{
		EncodedContent: "data:image/png;base64,AAAA",
		ContentType:    "image/png",
		HasDimensions:  true,
		Width:          4,
		Height:         3,
	}
}

func TestMemoryCache_SetGet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", sampleEntry()))
	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleEntry(), got)
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)
	require.NoError(t, c.Set(ctx, "k", sampleEntry()))

	got, _, _ := c.Get(ctx, "k")
	got.Width = 999

	again, _, _ := c.Get(ctx, "k")
	assert.Equal(t, 4, again.Width)
}

func TestMemoryCache_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2)
	require.NoError(t, c.Set(ctx, "a", sampleEntry()))
	require.NoError(t, c.Set(ctx, "b", sampleEntry()))
	require.NoError(t, c.Set(ctx, "c", sampleEntry()))

	assert.Equal(t, 2, c.Len())
	_, ok, _ := c.Get(ctx, "a")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok, _ = c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestRedisCache_SetGet(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	c, err := NewRedisCache(mr.Addr(), "", 0, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Ping(ctx))

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", sampleEntry()))
	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleEntry(), got)
	assert.True(t, mr.Exists(keyPrefix+"k"))
}

func TestRedisCache_TTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	c, err := NewRedisCache(mr.Addr(), "", 0, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Set(ctx, "k", sampleEntry()))
	mr.FastForward(2 * time.Second)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewCache(t *testing.T) {
	c, err := NewCache(Config{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)

	_, err = NewCache(Config{Type: "redis"})
	assert.Error(t, err, "redis without address should fail")

	_, err = NewCache(Config{Type: "memcached"})
	assert.Error(t, err)
}
