package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/exprsn/platform/cmd/platform/container"
	"github.com/exprsn/platform/cmd/platform/handlers"
	"github.com/exprsn/platform/cmd/platform/middleware"
)

// RegisterAdminRoutes registers migration routes
func RegisterAdminRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewMigrationHandler(c.Migrations)

	migrations := e.Group("/admin/api/migrations", middleware.RequireUserID())
	{
		migrations.POST("", h.Create)                           // POST /admin/api/migrations
		migrations.GET("", h.List)                              // GET /admin/api/migrations
		migrations.POST("/execute-pending", h.ExecuteAllPending) // POST /admin/api/migrations/execute-pending
		migrations.GET("/:id", h.Get)
		migrations.PUT("/:id", h.UpdateSQL)
		migrations.POST("/:id/execute", h.Execute)
		migrations.POST("/:id/rollback", h.Rollback)
		migrations.POST("/:id/reset", h.Reset)
	}
}
