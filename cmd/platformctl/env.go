package main

import (
	"context"
	"fmt"

	"github.com/exprsn/platform/cmd/platform/repository"
	"github.com/exprsn/platform/common/bootstrap"
)

// setup connects to the platform database only. Commands never touch the
// queue, the cache or Redis.
func setup(ctx context.Context) (*bootstrap.Components, error) {
	components, err := bootstrap.Setup(ctx, "platformctl",
		bootstrap.WithoutRedis(),
		bootstrap.WithoutQueue(),
		bootstrap.WithoutCache(),
		bootstrap.WithoutTelemetry(),
		bootstrap.WithDBInitHook(repository.ApplySchema),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to bootstrap: %w", err)
	}
	if components.DB == nil {
		_ = components.Shutdown(ctx)
		return nil, fmt.Errorf("database is not configured")
	}
	return components, nil
}
