package middleware

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/exprsn/platform/common/apperr"
	"github.com/exprsn/platform/common/clients"
	"github.com/exprsn/platform/common/logger"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// UserIDKey is the echo context key of the calling user
	UserIDKey ContextKey = "user_id"

	UserIDHeader = "X-User-ID"
)

// ExtractUserID stores the X-User-ID header in the echo context and in the
// request context, where outbound clients forward it. The request id set by
// echo's RequestID middleware becomes the log trace id.
//
// Usage:
//
//	e.Use(middleware.RequestID())
//	e.Use(ExtractUserID())
func ExtractUserID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := req.Context()

			if userID := req.Header.Get(UserIDHeader); userID != "" {
				c.Set(string(UserIDKey), userID)
				ctx = clients.WithUserID(ctx, userID)
			}
			if requestID := c.Response().Header().Get(echo.HeaderXRequestID); requestID != "" {
				ctx = clients.WithRequestID(ctx, requestID)
				ctx = context.WithValue(ctx, logger.TraceIDKey, requestID)
			}

			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

// RequireUserID rejects requests without X-User-ID
func RequireUserID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if GetUserID(c) == "" {
				return apperr.Auth("authentication required (%s header missing)", UserIDHeader)
			}
			return next(c)
		}
	}
}

// GetUserID retrieves the user id from the echo context.
// Returns empty string if not set
func GetUserID(c echo.Context) string {
	userID, _ := c.Get(string(UserIDKey)).(string)
	return userID
}
