package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/exprsn/platform/cmd/platform/container"
	"github.com/exprsn/platform/cmd/platform/handlers"
	"github.com/exprsn/platform/cmd/platform/middleware"
)

// RegisterReportRoutes registers report execution and schedule routes.
// Export files are served from the scheduler's export directory.
func RegisterReportRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewReportHandler(c.Reports, c.Schedules)

	reports := e.Group("/reports/api", middleware.RequireUserID())
	{
		execute := []echo.MiddlewareFunc{}
		if c.Limiter != nil {
			execute = append(execute, middleware.UserRateLimit(c.Limiter, 30, 60, c.Components.Logger))
		}
		reports.POST("/reports/:id/execute", h.Execute, execute...) // POST /reports/api/reports/{id}/execute
		reports.GET("/executions/:id", h.GetExecution)   // GET /reports/api/executions/{id}

		reports.POST("/schedules", h.CreateSchedule)
		reports.GET("/schedules", h.ListSchedules)
		reports.GET("/schedules/:id", h.GetSchedule)
		reports.PUT("/schedules/:id", h.UpdateSchedule)
		reports.DELETE("/schedules/:id", h.DeleteSchedule)
		reports.POST("/schedules/:id/run", h.RunSchedule)
	}

	if c.Components.Config.Scheduler.Enabled {
		e.Static("/exports", c.Components.Config.Scheduler.ExportDir)
	}
}
