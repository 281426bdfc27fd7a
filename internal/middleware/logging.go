package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// RequestID tags every request and response with an X-Request-ID, keeping
// one supplied by the client.
func RequestID() echo.MiddlewareFunc {
	return echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString})
}

// RequestLogger writes one slog record per request.  Server errors log at
// error, client errors at warn, the rest at debug; health probes are only
// logged when they fail.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			startedAt := time.Now()
			err := next(c)
			if err != nil {
				// let echo's error handler settle the status first
				c.Error(err)
			}

			status := c.Response().Status
			path := c.Path()
			if status < http.StatusBadRequest && path == "/healthz" {
				return nil
			}
			attrs := []any{
				slog.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
				slog.String("method", c.Request().Method),
				slog.String("route", path),
				slog.String("uri", c.Request().RequestURI),
				slog.Int("status", status),
				slog.Duration("latency", time.Since(startedAt)),
				slog.Int64("bytes", c.Response().Size),
				slog.String("user_id", currentUserID(c)),
			}
			if err != nil {
				attrs = append(attrs, slog.Any("err", err))
			}
			ctx := c.Request().Context()
			switch {
			case status >= http.StatusInternalServerError:
				logger.ErrorContext(ctx, "http_request", attrs...)
			case status >= http.StatusBadRequest:
				logger.WarnContext(ctx, "http_request", attrs...)
			default:
				logger.DebugContext(ctx, "http_request", attrs...)
			}
			return nil
		}
	}
}
