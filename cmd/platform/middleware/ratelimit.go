package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/exprsn/platform/common/logger"
	"github.com/exprsn/platform/common/ratelimit"
)

// Limiter is the part of ratelimit.RateLimiter the middleware needs
type Limiter interface {
	CheckGlobalLimit(ctx context.Context) (*ratelimit.RateLimitResult, error)
	CheckUserLimit(ctx context.Context, userID string, limit int64, windowSec int) (*ratelimit.RateLimitResult, error)
}

func tooManyRequests(c echo.Context, code, message string, result *ratelimit.RateLimitResult) error {
	c.Response().Header().Set("Retry-After", strconv.FormatInt(result.RetryAfterSeconds, 10))
	return c.JSON(http.StatusTooManyRequests, map[string]any{
		"success": false,
		"error":   code,
		"message": message,
		"details": map[string]any{
			"limit":             result.Limit,
			"currentCount":      result.CurrentCount,
			"retryAfterSeconds": result.RetryAfterSeconds,
		},
	})
}

// GlobalRateLimit protects the whole service. Limiter errors let the
// request through.
func GlobalRateLimit(limiter Limiter, log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			result, err := limiter.CheckGlobalLimit(c.Request().Context())
			if err != nil {
				log.Warn("global rate limit check failed", "error", err)
				return next(c)
			}
			if !result.Allowed {
				return tooManyRequests(c, "RATE_LIMITED", "Service is experiencing high load. Please try again later.", result)
			}
			return next(c)
		}
	}
}

// UserRateLimit applies a per-user quota. Requests without a user id are
// not counted.
func UserRateLimit(limiter Limiter, limit int64, windowSec int, log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := GetUserID(c)
			if userID == "" {
				return next(c)
			}

			result, err := limiter.CheckUserLimit(c.Request().Context(), userID, limit, windowSec)
			if err != nil {
				log.Warn("user rate limit check failed", "user_id", userID, "error", err)
				return next(c)
			}
			if !result.Allowed {
				return tooManyRequests(c, "USER_RATE_LIMITED", "You have exceeded your request quota. Please wait before trying again.", result)
			}
			return next(c)
		}
	}
}
