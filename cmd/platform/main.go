package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/exprsn/platform/cmd/platform/container"
	"github.com/exprsn/platform/cmd/platform/handlers"
	"github.com/exprsn/platform/cmd/platform/middleware"
	"github.com/exprsn/platform/cmd/platform/repository"
	"github.com/exprsn/platform/cmd/platform/routes"
	"github.com/exprsn/platform/common/bootstrap"
	"github.com/exprsn/platform/common/server"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (DB, logger, redis, queue, cache, telemetry)
	components, err := bootstrap.Setup(ctx, "platform", bootstrap.WithDBInitHook(repository.ApplySchema))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap platform: %v\n", err)
		os.Exit(1)
	}

	serviceContainer, err := container.NewContainer(components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		_ = components.Shutdown(ctx)
		os.Exit(1)
	}

	e := setupEcho(serviceContainer)
	setupMiddleware(e, serviceContainer)
	setupHealthCheck(e, components)
	registerRoutes(e, serviceContainer)

	if err := startBackground(ctx, serviceContainer); err != nil {
		components.Logger.Error("failed to start background workers", "error", err)
		_ = components.Shutdown(ctx)
		os.Exit(1)
	}

	startServer(e, serviceContainer)
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho(c *container.Container) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handlers.ErrorHandler(c.Components.Logger)
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo, c *container.Container) {
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: c.Components.Config.Service.CORSOrigins,
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization, middleware.UserIDHeader},
	}))
	e.Use(echomw.Logger())
	e.Use(middleware.ExtractUserID())
	if c.Limiter != nil {
		e.Use(middleware.GlobalRateLimit(c.Limiter, c.Components.Logger))
	}
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, components *bootstrap.Components) {
	e.GET("/health", func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status":  "unhealthy",
				"service": "platform",
				"error":   err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "platform",
		})
	})
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, c *container.Container) {
	routes.RegisterLowCodeRoutes(e, c)
	routes.RegisterGitRoutes(e, c)
	routes.RegisterReportRoutes(e, c)
	routes.RegisterAdminRoutes(e, c)
	routes.RegisterProjectRoutes(e, c)
}

// startBackground starts the notification consumer and the report scheduler
func startBackground(ctx context.Context, c *container.Container) error {
	if err := c.Notifications.Start(ctx); err != nil {
		return fmt.Errorf("notifications: %w", err)
	}
	if c.Scheduler != nil {
		if err := c.Scheduler.Start(ctx); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
	}
	return nil
}

// startServer serves until SIGINT/SIGTERM, then stops the scheduler and
// releases components
func startServer(e *echo.Echo, c *container.Container) {
	log := c.Components.Logger
	srv := server.New("platform", c.Components.Config.Service.Port, e, log)
	if c.Scheduler != nil {
		srv.OnShutdown(c.Scheduler.Shutdown)
	}
	srv.OnShutdown(c.Components.Shutdown)

	if err := srv.Start(); err != nil {
		log.Error("Server error", "error", err)
		os.Exit(1)
	}
}
