package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/exprsn/platform/cmd/platform/middleware"
	"github.com/exprsn/platform/cmd/platform/service"
)

// MigrationHandler exposes the migration executor to administrators
type MigrationHandler struct {
	migrations *service.MigrationService
}

// NewMigrationHandler creates a new migration handler
func NewMigrationHandler(migrations *service.MigrationService) *MigrationHandler {
	return &MigrationHandler{migrations: migrations}
}

// Create POST /admin/api/migrations
func (h *MigrationHandler) Create(c echo.Context) error {
	var in service.MigrationInput
	if err := bind(c, &in); err != nil {
		return err
	}
	m, err := h.migrations.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return ok(c, http.StatusCreated, m)
}

// List GET /admin/api/migrations
func (h *MigrationHandler) List(c echo.Context) error {
	list, err := h.migrations.List(c.Request().Context())
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, list)
}

// Get GET /admin/api/migrations/:id
func (h *MigrationHandler) Get(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	m, err := h.migrations.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, m)
}

type updateSQLRequest struct {
	MigrationSQL string  `json:"migrationSql"`
	RollbackSQL  *string `json:"rollbackSql,omitempty"`
}

// UpdateSQL PUT /admin/api/migrations/:id
func (h *MigrationHandler) UpdateSQL(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var req updateSQLRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	m, err := h.migrations.UpdateSQL(c.Request().Context(), id, req.MigrationSQL, req.RollbackSQL)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, m)
}

// Execute POST /admin/api/migrations/:id/execute
func (h *MigrationHandler) Execute(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	m, err := h.migrations.Execute(c.Request().Context(), id, middleware.GetUserID(c))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, m)
}

// Rollback POST /admin/api/migrations/:id/rollback
func (h *MigrationHandler) Rollback(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	m, err := h.migrations.Rollback(c.Request().Context(), id, middleware.GetUserID(c))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, m)
}

// Reset POST /admin/api/migrations/:id/reset
func (h *MigrationHandler) Reset(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	m, err := h.migrations.ResetStatus(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, m)
}

// ExecuteAllPending POST /admin/api/migrations/execute-pending
func (h *MigrationHandler) ExecuteAllPending(c echo.Context) error {
	res, err := h.migrations.ExecuteAllPending(c.Request().Context(), middleware.GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}
