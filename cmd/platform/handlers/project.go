package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/exprsn/platform/cmd/platform/service"
	"github.com/exprsn/platform/common/apperr"
)

const dateLayout = "2006-01-02"

// ProjectHandler exposes critical-path scheduling and resource allocation
type ProjectHandler struct {
	projects *service.ProjectService
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(projects *service.ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

// Gantt GET /projects/api/:id/gantt
func (h *ProjectHandler) Gantt(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	sched, err := h.projects.Gantt(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, sched)
}

// Suggestions GET /projects/api/:id/suggestions
func (h *ProjectHandler) Suggestions(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	list, err := h.projects.Suggestions(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, list)
}

// ProjectResources GET /projects/api/:id/resources?startDate&endDate&userIds
func (h *ProjectHandler) ProjectResources(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	return h.resources(c, &id)
}

// UserResources GET /projects/api/resources?userIds=a,b&startDate&endDate
func (h *ProjectHandler) UserResources(c echo.Context) error {
	return h.resources(c, nil)
}

func (h *ProjectHandler) resources(c echo.Context, projectID *uuid.UUID) error {
	q := service.ResourceQuery{ProjectID: projectID}
	var err error
	if q.StartDate, err = queryDate(c, "startDate"); err != nil {
		return err
	}
	if q.EndDate, err = queryDate(c, "endDate"); err != nil {
		return err
	}
	for _, u := range strings.Split(c.QueryParam("userIds"), ",") {
		if u = strings.TrimSpace(u); u != "" {
			q.UserIDs = append(q.UserIDs, u)
		}
	}

	alloc, err := h.projects.Resources(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, alloc)
}

func queryDate(c echo.Context, name string) (time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, apperr.Validation("%s must be YYYY-MM-DD", name)
	}
	return t, nil
}
