package middleware

import (
	"log/slog"
	"time"

	"p2p-lending-backend/internal/infrastructure/metrics"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// Metrics records request latency by route template.
func Metrics(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.ObserveHTTP(c.Request().Method, route, c.Response().Status, time.Since(start))
			return nil
		}
	}
}

// RequestLogger logs one line per request through slog.
func RequestLogger() echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
			}
			if id, ok := Identity(c); ok {
				attrs = append(attrs, "user_id", id.UserID)
			}
			switch {
			case v.Error != nil && v.Status >= 500:
				slog.ErrorContext(c.Request().Context(), "request", append(attrs, "err", v.Error)...)
			case v.Status >= 400:
				slog.WarnContext(c.Request().Context(), "request", attrs...)
			default:
				slog.InfoContext(c.Request().Context(), "request", attrs...)
			}
			return nil
		},
	})
}
