package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mimi6060/festivals-sub018/internal/version"
)

func (s *Server) handleLiveness(c echo.Context) error {
	uptime := s.clock.Since(s.startTime).Seconds()
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"uptime":  uptime,
		"version": version.Get(),
	})
}

// handleReadiness proves the hub's processing loop is still draining
// commands by running a stats round-trip through it.
func (s *Server) handleReadiness(c echo.Context) error {
	done := make(chan struct{})
	go func() {
		s.hub.Stats()
		close(done)
	}()

	select {
	case <-done:
		return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
	case <-c.Request().Context().Done():
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status":       "unhealthy",
			"failed_check": "hub",
		})
	}
}
