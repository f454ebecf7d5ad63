package cache

import (
	"context"
	"testing"
	"time"

	"github.com/exprsn/platform/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache(logger.Discard())
	defer c.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "report:1", []byte("rows"), time.Minute))

	val, ok, err := c.Get(ctx, "report:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("rows"), val)

	now = now.Add(2 * time.Minute)
	_, ok, err = c.Get(ctx, "report:1")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 1, c.evictExpired())
	assert.Equal(t, 0, c.Stats()["entries"])
}

func TestMemoryCacheDelete(t *testing.T) {
	c := NewMemoryCache(logger.Discard())
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Hour))
	require.NoError(t, c.Delete(ctx, "k"))

	_, ok, _ := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryCacheCloseIsIdempotent(t *testing.T) {
	c := NewMemoryCache(logger.Discard())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
