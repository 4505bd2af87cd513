package server

import (
	"github.com/labstack/echo/v4"

	"github.com/mimi6060/festivals-sub018/internal/logging"
)

// requestIDMiddleware assigns every request an ID, stores it in the request
// context for context-aware log calls, and echoes it back in a header.
func requestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = logging.NewRequestID()
			}
			ctx := logging.WithRequestID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			return next(c)
		}
	}
}
