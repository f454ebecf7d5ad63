package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/exprsn/platform/cmd/platform/container"
	"github.com/exprsn/platform/cmd/platform/handlers"
)

// RegisterLowCodeRoutes registers artifact export/import and repository
// workspace routes
func RegisterLowCodeRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewArtifactHandler(c.ArtifactSync)

	artifacts := e.Group("/lowcode/api/artifacts")
	{
		artifacts.POST("/export", h.Export)                          // POST /lowcode/api/artifacts/export
		artifacts.POST("/export-application", h.ExportApplication)   // POST /lowcode/api/artifacts/export-application
		artifacts.POST("/import", h.Import)                          // POST /lowcode/api/artifacts/import
		artifacts.POST("/import-application", h.ImportApplication)   // POST /lowcode/api/artifacts/import-application
		artifacts.GET("/changed-files", h.ChangedFiles)              // GET /lowcode/api/artifacts/changed-files
		artifacts.GET("/file-content", h.FileContent)                // GET /lowcode/api/artifacts/file-content
	}

	repos := e.Group("/lowcode/api/repositories")
	{
		repos.POST("/:id/init", h.InitRepository) // POST /lowcode/api/repositories/{id}/init
		repos.POST("/:id/commit", h.Commit)       // POST /lowcode/api/repositories/{id}/commit
	}
}
