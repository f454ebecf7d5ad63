package bootstrap

import (
	"context"
	"testing"

	"github.com/exprsn/platform/common/cache"
	"github.com/exprsn/platform/common/config"
	"github.com/exprsn/platform/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("platform-test")
	require.NoError(t, err)
	return cfg
}

func TestSetupWithoutExternalDependencies(t *testing.T) {
	ctx := context.Background()
	components, err := Setup(ctx, "platform-test",
		WithCustomConfig(testConfig(t)),
		WithCustomLogger(logger.Discard()),
		WithoutDB(),
		WithoutRedis(),
		WithoutTelemetry(),
	)
	require.NoError(t, err)

	assert.Nil(t, components.DB)
	assert.Nil(t, components.Redis)
	assert.NotNil(t, components.Queue)
	assert.IsType(t, &cache.MemoryCache{}, components.Cache)
	assert.NoError(t, components.Health(ctx))
	assert.NoError(t, components.Shutdown(ctx))
}

func TestSetupRedisBackendRequiresRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Backend = "redis"

	_, err := Setup(context.Background(), "platform-test",
		WithCustomConfig(cfg),
		WithCustomLogger(logger.Discard()),
		WithoutDB(),
		WithoutRedis(),
		WithoutTelemetry(),
	)
	assert.Error(t, err)
}

func TestShutdownRunsCleanupInReverseOrder(t *testing.T) {
	var order []int
	c := &Components{Logger: logger.Discard()}
	c.addCleanup(func() error { order = append(order, 1); return nil })
	c.addCleanup(func() error { order = append(order, 2); return nil })

	require.NoError(t, c.Shutdown(context.Background()))
	assert.Equal(t, []int{2, 1}, order)
}
