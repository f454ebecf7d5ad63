package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/exprsn/platform/cmd/platform/middleware"
	"github.com/exprsn/platform/cmd/platform/service"
	"github.com/exprsn/platform/common/apperr"
)

// DocumentHandler exposes document versions, annotations and presence
type DocumentHandler struct {
	docs     *service.DocumentService
	presence *service.PresenceTracker
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(docs *service.DocumentService, presence *service.PresenceTracker) *DocumentHandler {
	return &DocumentHandler{docs: docs, presence: presence}
}

// CreateVersion POST /documents/api/:id/versions
func (h *DocumentHandler) CreateVersion(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var in service.VersionInput
	if err := bind(c, &in); err != nil {
		return err
	}
	v, err := h.docs.CreateVersion(c.Request().Context(), id, middleware.GetUserID(c), in)
	if err != nil {
		return err
	}
	return ok(c, http.StatusCreated, v)
}

// ListVersions GET /documents/api/:id/versions
func (h *DocumentHandler) ListVersions(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	list, err := h.docs.ListVersions(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, list)
}

// GetVersion GET /documents/api/:id/versions/:number
func (h *DocumentHandler) GetVersion(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	n, err := pathInt(c, "number")
	if err != nil {
		return err
	}
	v, err := h.docs.GetVersion(c.Request().Context(), id, n)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, v)
}

// RestoreVersion POST /documents/api/:id/versions/:number/restore
func (h *DocumentHandler) RestoreVersion(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	n, err := pathInt(c, "number")
	if err != nil {
		return err
	}
	v, err := h.docs.RestoreVersion(c.Request().Context(), id, n, middleware.GetUserID(c))
	if err != nil {
		return err
	}
	return ok(c, http.StatusCreated, v)
}

// DeleteVersion DELETE /documents/api/:id/versions/:number
func (h *DocumentHandler) DeleteVersion(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	n, err := pathInt(c, "number")
	if err != nil {
		return err
	}
	if err := h.docs.DeleteVersion(c.Request().Context(), id, n); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// CompareVersions GET /documents/api/:id/versions/compare?from&to
func (h *DocumentHandler) CompareVersions(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	from, err1 := strconv.Atoi(c.QueryParam("from"))
	to, err2 := strconv.Atoi(c.QueryParam("to"))
	if err1 != nil || err2 != nil {
		return apperr.Validation("from and to must be version numbers")
	}
	diff, err := h.docs.CompareVersions(c.Request().Context(), id, from, to)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, diff)
}

// AddAnnotation POST /documents/api/:id/annotations
func (h *DocumentHandler) AddAnnotation(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var in service.AnnotationInput
	if err := bind(c, &in); err != nil {
		return err
	}
	a, err := h.docs.AddAnnotation(c.Request().Context(), id, middleware.GetUserID(c), in)
	if err != nil {
		return err
	}
	return ok(c, http.StatusCreated, a)
}

// ListAnnotations GET /documents/api/:id/annotations
func (h *DocumentHandler) ListAnnotations(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	list, err := h.docs.ListAnnotations(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, list)
}

// DeleteAnnotation DELETE /documents/api/:id/annotations/:annotationId
func (h *DocumentHandler) DeleteAnnotation(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	annID, err := pathUUID(c, "annotationId")
	if err != nil {
		return err
	}
	if err := h.docs.DeleteAnnotation(c.Request().Context(), id, annID, middleware.GetUserID(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Presence GET /documents/api/:id/presence
func (h *DocumentHandler) Presence(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, h.presence.Active(c.Request().Context(), id))
}

// Join POST /documents/api/:id/presence
func (h *DocumentHandler) Join(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var req service.PresenceUpdate
	if err := bind(c, &req); err != nil {
		return err
	}
	return ok(c, http.StatusOK, h.presence.Join(c.Request().Context(), id, middleware.GetUserID(c), req))
}

// Heartbeat PUT /documents/api/:id/presence
func (h *DocumentHandler) Heartbeat(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var req service.PresenceUpdate
	if err := bind(c, &req); err != nil {
		return err
	}
	return ok(c, http.StatusOK, h.presence.Heartbeat(c.Request().Context(), id, middleware.GetUserID(c), req))
}

// Leave DELETE /documents/api/:id/presence
func (h *DocumentHandler) Leave(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, h.presence.Leave(c.Request().Context(), id, middleware.GetUserID(c)))
}
