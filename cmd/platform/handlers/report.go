package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/exprsn/platform/cmd/platform/middleware"
	"github.com/exprsn/platform/cmd/platform/service"
)

// ReportHandler exposes report execution and schedule management
type ReportHandler struct {
	reports   *service.ReportService
	schedules *service.ScheduleService
}

// NewReportHandler creates a new report handler
func NewReportHandler(reports *service.ReportService, schedules *service.ScheduleService) *ReportHandler {
	return &ReportHandler{reports: reports, schedules: schedules}
}

type executeRequest struct {
	Parameters map[string]any `json:"parameters"`
}

// Execute runs a report now
// POST /reports/api/reports/:id/execute
func (h *ReportHandler) Execute(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var req executeRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	out, err := h.reports.Execute(c.Request().Context(), id, middleware.GetUserID(c), req.Parameters, nil)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, out)
}

// GetExecution GET /reports/api/executions/:id
func (h *ReportHandler) GetExecution(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	exec, err := h.reports.GetExecution(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, exec)
}

// CreateSchedule POST /reports/api/schedules
func (h *ReportHandler) CreateSchedule(c echo.Context) error {
	var in service.ScheduleInput
	if err := bind(c, &in); err != nil {
		return err
	}
	sched, err := h.schedules.Create(c.Request().Context(), middleware.GetUserID(c), in)
	if err != nil {
		return err
	}
	return ok(c, http.StatusCreated, sched)
}

// ListSchedules GET /reports/api/schedules
func (h *ReportHandler) ListSchedules(c echo.Context) error {
	list, err := h.schedules.List(c.Request().Context(), middleware.GetUserID(c))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, list)
}

// GetSchedule GET /reports/api/schedules/:id
func (h *ReportHandler) GetSchedule(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	sched, err := h.schedules.Get(c.Request().Context(), middleware.GetUserID(c), id)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, sched)
}

// UpdateSchedule PUT /reports/api/schedules/:id
func (h *ReportHandler) UpdateSchedule(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var in service.ScheduleInput
	if err := bind(c, &in); err != nil {
		return err
	}
	sched, err := h.schedules.Update(c.Request().Context(), middleware.GetUserID(c), id, in)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, sched)
}

// DeleteSchedule DELETE /reports/api/schedules/:id
func (h *ReportHandler) DeleteSchedule(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.schedules.Delete(c.Request().Context(), middleware.GetUserID(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// RunSchedule POST /reports/api/schedules/:id/run
func (h *ReportHandler) RunSchedule(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	exec, err := h.schedules.RunNow(c.Request().Context(), middleware.GetUserID(c), id)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, exec)
}
