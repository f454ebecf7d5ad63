package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exprsn/platform/common/apperr"
	"github.com/exprsn/platform/common/clients"
	"github.com/exprsn/platform/common/logger"
)

func TestExtractUserIDPopulatesContexts(t *testing.T) {
	e := echo.New()
	e.Use(echomw.RequestID())
	e.Use(ExtractUserID())

	var (
		echoUser  string
		ctxUser   string
		requestID string
		traceID   any
	)
	e.GET("/", func(c echo.Context) error {
		echoUser = GetUserID(c)
		ctx := c.Request().Context()
		ctxUser, _ = clients.GetUserID(ctx)
		requestID, _ = clients.GetRequestID(ctx)
		traceID = ctx.Value(logger.TraceIDKey)
		return c.NoContent(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(UserIDHeader, "user-42")
	req.Header.Set(echo.HeaderXRequestID, "req-7")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "user-42", echoUser)
	assert.Equal(t, "user-42", ctxUser)
	assert.Equal(t, "req-7", requestID)
	assert.Equal(t, "req-7", traceID)
}

func TestRequireUserID(t *testing.T) {
	e := echo.New()
	h := ExtractUserID()(RequireUserID()(func(c echo.Context) error {
		return c.String(http.StatusOK, GetUserID(c))
	}))

	rec := httptest.NewRecorder()
	err := h(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec))
	require.Error(t, err)
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(UserIDHeader, "user-1")
	rec = httptest.NewRecorder()
	require.NoError(t, h(e.NewContext(req, rec)))
	assert.Equal(t, "user-1", rec.Body.String())
}
