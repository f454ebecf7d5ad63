package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/exprsn/platform/cmd/platform/container"
	"github.com/exprsn/platform/cmd/platform/handlers"
	"github.com/exprsn/platform/cmd/platform/middleware"
)

// RegisterProjectRoutes registers critical-path and document routes
func RegisterProjectRoutes(e *echo.Echo, c *container.Container) {
	p := handlers.NewProjectHandler(c.Projects)

	projects := e.Group("/projects/api")
	{
		projects.GET("/resources", p.UserResources)         // GET /projects/api/resources?userIds=a,b
		projects.GET("/:id/gantt", p.Gantt)                 // GET /projects/api/{id}/gantt
		projects.GET("/:id/resources", p.ProjectResources)  // GET /projects/api/{id}/resources
		projects.GET("/:id/suggestions", p.Suggestions)     // GET /projects/api/{id}/suggestions
	}

	d := handlers.NewDocumentHandler(c.Documents, c.Presence)

	docs := e.Group("/documents/api/:id", middleware.RequireUserID())
	{
		docs.POST("/versions", d.CreateVersion)
		docs.GET("/versions", d.ListVersions)
		docs.GET("/versions/compare", d.CompareVersions)
		docs.GET("/versions/:number", d.GetVersion)
		docs.DELETE("/versions/:number", d.DeleteVersion)
		docs.POST("/versions/:number/restore", d.RestoreVersion)

		docs.POST("/annotations", d.AddAnnotation)
		docs.GET("/annotations", d.ListAnnotations)
		docs.DELETE("/annotations/:annotationId", d.DeleteAnnotation)

		docs.GET("/presence", d.Presence)
		docs.POST("/presence", d.Join)
		docs.PUT("/presence", d.Heartbeat)
		docs.DELETE("/presence", d.Leave)
	}
}
