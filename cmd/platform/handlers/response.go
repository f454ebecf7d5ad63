package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/exprsn/platform/common/apperr"
	"github.com/exprsn/platform/common/logger"
)

func ok(c echo.Context, status int, data any) error {
	return c.JSON(status, map[string]any{"success": true, "data": data})
}

// ErrorHandler renders every error as {success:false, error, message}.
// Classified errors keep their code and status; echo errors keep their
// status; anything else is a 500.
func ErrorHandler(log *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := apperr.HTTPStatus(err)
		body := map[string]any{"success": false, "error": apperr.CodeOf(err), "message": err.Error()}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			body["error"] = http.StatusText(he.Code)
			body["message"] = he.Message
		} else if details := apperr.DetailsOf(err); len(details) > 0 {
			body["details"] = details
		}

		if status >= http.StatusInternalServerError {
			log.WithContext(c.Request().Context()).Error("request failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"error", err,
			)
			if apperr.KindOf(err) == apperr.KindInternal {
				body["message"] = "internal error"
			}
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			log.Error("failed to write error response", "error", err)
		}
	}
}

func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return apperr.Validation("invalid request body")
	}
	return nil
}

func parseUUID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid %s format", field)
	}
	return id, nil
}

func pathUUID(c echo.Context, name string) (uuid.UUID, error) {
	return parseUUID(c.Param(name), name)
}

func pathInt(c echo.Context, name string) (int, error) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil || n < 1 {
		return 0, apperr.Validation("invalid %s", name)
	}
	return n, nil
}
