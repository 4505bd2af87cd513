package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	apperrors "github.com/mimi6060/festivals-sub018/internal/errors"
	"github.com/mimi6060/festivals-sub018/internal/metrics"
	"github.com/mimi6060/festivals-sub018/internal/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Auth of the upgrade request is terminated upstream.
		return true
	},
}

func (s *Server) handleWebSocket(channel realtime.Channel) echo.HandlerFunc {
	return func(c echo.Context) error {
		festivalID := c.Param("festivalID")
		if festivalID == "" {
			return apperrors.Validation("missing festival id")
		}

		ip := c.RealIP()
		ok, reason := s.limits.Acquire(ip)
		if !ok {
			metrics.ConnectionsRejectedTotal.WithLabelValues(string(reason)).Inc()
			if reason == LimitReasonRate {
				return apperrors.RateLimited("connection rate exceeded").
					WithContext("festival_id", festivalID)
			}
			return apperrors.Unavailable("connection limit reached").
				WithContext("festival_id", festivalID).
				WithContext("limit", string(reason))
		}
		defer s.limits.Release(ip)

		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			// The upgrader has already written its own error response.
			slog.DebugContext(c.Request().Context(), "websocket upgrade failed", "error", err)
			return nil
		}

		// Blocks until the connection dies or the hub tears it down.
		realtime.ServeSession(s.hub, conn, festivalID, channel)
		return nil
	}
}
