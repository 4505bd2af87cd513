package errors

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPErrorsTotal counts handler errors by type.
var HTTPErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_errors_total",
		Help: "Total HTTP errors by error type",
	},
	[]string{"type"},
)

// Middleware converts structured errors returned by handlers into JSON
// responses with the mapped status code. Echo's own HTTPErrors pass through
// untouched so routing errors keep their status.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			structured := From(err)
			HTTPErrorsTotal.WithLabelValues(string(structured.Type)).Inc()
			logError(c, structured)

			if c.Response().Committed {
				return nil
			}
			if err := c.JSON(structured.HTTPStatus(), structured.ToResponse()); err != nil {
				return fmt.Errorf("write error response: %w", err)
			}
			return nil
		}
	}
}

func logError(c echo.Context, err *Error) {
	attrs := []any{
		"error_type", string(err.Type),
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}
	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}
	if err.Cause != nil {
		attrs = append(attrs, "cause", err.Cause.Error())
	}

	ctx := c.Request().Context()
	switch err.Type {
	case TypeValidation, TypeNotFound:
		slog.InfoContext(ctx, "request rejected", attrs...)
	case TypeRateLimited, TypeUnavailable:
		slog.WarnContext(ctx, "request refused", attrs...)
	default:
		slog.ErrorContext(ctx, "request failed", attrs...)
	}
}
