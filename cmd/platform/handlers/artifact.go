package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/exprsn/platform/cmd/platform/middleware"
	"github.com/exprsn/platform/cmd/platform/service"
	"github.com/exprsn/platform/common/apperr"
	"github.com/exprsn/platform/common/codec"
	"github.com/exprsn/platform/common/gitrepo"
)

// ArtifactHandler exposes the export/import orchestrator
type ArtifactHandler struct {
	sync *service.ArtifactSyncService
}

// NewArtifactHandler creates a new artifact handler
func NewArtifactHandler(sync *service.ArtifactSyncService) *ArtifactHandler {
	return &ArtifactHandler{sync: sync}
}

type exportRequest struct {
	ArtifactType string `json:"artifactType"`
	ArtifactID   string `json:"artifactId"`
	RepositoryID string `json:"repositoryId"`
}

// Export writes one artifact into a repository workspace
// POST /lowcode/api/artifacts/export
func (h *ArtifactHandler) Export(c echo.Context) error {
	var req exportRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.ArtifactType == "" || req.ArtifactID == "" || req.RepositoryID == "" {
		return apperr.Validation("artifactType, artifactId and repositoryId are required")
	}
	kind, err := codec.ParseKind(req.ArtifactType)
	if err != nil {
		return err
	}
	artifactID, err := parseUUID(req.ArtifactID, "artifactId")
	if err != nil {
		return err
	}
	repoID, err := parseUUID(req.RepositoryID, "repositoryId")
	if err != nil {
		return err
	}

	file, err := h.sync.ExportArtifact(c.Request().Context(), kind, artifactID, repoID)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, file)
}

type exportApplicationRequest struct {
	ApplicationID string `json:"applicationId"`
	RepositoryID  string `json:"repositoryId"`
}

// ExportApplication writes an application and all its artifacts
// POST /lowcode/api/artifacts/export-application
func (h *ArtifactHandler) ExportApplication(c echo.Context) error {
	var req exportApplicationRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	appID, err := parseUUID(req.ApplicationID, "applicationId")
	if err != nil {
		return err
	}
	repoID, err := parseUUID(req.RepositoryID, "repositoryId")
	if err != nil {
		return err
	}

	res, err := h.sync.ExportApplication(c.Request().Context(), appID, repoID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

type importRequest struct {
	RepositoryID  string  `json:"repositoryId"`
	RelativePath  string  `json:"relativePath"`
	Overwrite     bool    `json:"overwrite"`
	CreateNew     bool    `json:"createNew"`
	ApplicationID *string `json:"applicationId,omitempty"`
}

func (r importRequest) options() (service.ImportOptions, error) {
	opts := service.ImportOptions{Overwrite: r.Overwrite, CreateNew: r.CreateNew}
	if r.ApplicationID != nil && *r.ApplicationID != "" {
		id, err := parseUUID(*r.ApplicationID, "applicationId")
		if err != nil {
			return opts, err
		}
		opts.ApplicationID = &id
	}
	return opts, nil
}

// Import reads one file back into the database. A conflict answers 409
// with the resolver's details.
// POST /lowcode/api/artifacts/import
func (h *ArtifactHandler) Import(c echo.Context) error {
	var req importRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.RelativePath == "" {
		return apperr.Validation("relativePath is required")
	}
	repoID, err := parseUUID(req.RepositoryID, "repositoryId")
	if err != nil {
		return err
	}
	opts, err := req.options()
	if err != nil {
		return err
	}

	res, err := h.sync.ImportArtifact(c.Request().Context(), repoID, req.RelativePath, opts)
	if err != nil {
		return err
	}
	if res.Conflict {
		return c.JSON(http.StatusConflict, map[string]any{
			"success":         false,
			"conflict":        true,
			"error":           apperr.CodeConflict,
			"message":         "artifact in database conflicts with file",
			"conflictDetails": res.ConflictDetails,
		})
	}
	return c.JSON(http.StatusOK, res)
}

// ImportApplication reads a whole repository back into the database
// POST /lowcode/api/artifacts/import-application
func (h *ArtifactHandler) ImportApplication(c echo.Context) error {
	var req importRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	repoID, err := parseUUID(req.RepositoryID, "repositoryId")
	if err != nil {
		return err
	}
	opts, err := req.options()
	if err != nil {
		return err
	}

	res, err := h.sync.ImportApplication(c.Request().Context(), repoID, opts)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// ChangedFiles lists workspace files that differ from the database
// GET /lowcode/api/artifacts/changed-files?repositoryId&applicationId
func (h *ArtifactHandler) ChangedFiles(c echo.Context) error {
	repoID, err := parseUUID(c.QueryParam("repositoryId"), "repositoryId")
	if err != nil {
		return err
	}
	appID, err := parseUUID(c.QueryParam("applicationId"), "applicationId")
	if err != nil {
		return err
	}

	files, err := h.sync.ChangedFiles(c.Request().Context(), repoID, appID)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, files)
}

// FileContent returns the parsed JSON of one workspace file
// GET /lowcode/api/artifacts/file-content?repositoryId&relativePath
func (h *ArtifactHandler) FileContent(c echo.Context) error {
	repoID, err := parseUUID(c.QueryParam("repositoryId"), "repositoryId")
	if err != nil {
		return err
	}
	rel := c.QueryParam("relativePath")
	if rel == "" {
		return apperr.Validation("relativePath is required")
	}

	payload, err := h.sync.FileContent(c.Request().Context(), repoID, rel)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, payload)
}

type initRequest struct {
	ApplicationID *string `json:"applicationId,omitempty"`
}

// InitRepository writes the generated preamble into a workspace
// POST /lowcode/api/repositories/:id/init
func (h *ArtifactHandler) InitRepository(c echo.Context) error {
	repoID, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var req initRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	var appID *uuid.UUID
	if req.ApplicationID != nil && *req.ApplicationID != "" {
		id, err := parseUUID(*req.ApplicationID, "applicationId")
		if err != nil {
			return err
		}
		appID = &id
	}

	res, err := h.sync.InitRepository(c.Request().Context(), repoID, appID)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, res)
}

type commitRequest struct {
	Message     string `json:"message"`
	AuthorName  string `json:"authorName"`
	AuthorEmail string `json:"authorEmail"`
}

// Commit records the workspace as a commit on the default branch
// POST /lowcode/api/repositories/:id/commit
func (h *ArtifactHandler) Commit(c echo.Context) error {
	repoID, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var req commitRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Message == "" {
		return apperr.Validation("message is required")
	}
	author := gitrepo.Signature{Name: req.AuthorName, Email: req.AuthorEmail}
	if author.Name == "" {
		author.Name = middleware.GetUserID(c)
	}

	commit, err := h.sync.CommitWorkspace(c.Request().Context(), repoID, req.Message, author)
	if err != nil {
		return err
	}
	return ok(c, http.StatusCreated, commit)
}
