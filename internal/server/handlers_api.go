package server

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "github.com/mimi6060/festivals-sub018/internal/errors"
	"github.com/mimi6060/festivals-sub018/internal/realtime"
)

type broadcastRequest struct {
	Type realtime.MessageType `json:"type"`
	Data json.RawMessage      `json:"data"`
}

// handleBroadcast accepts an already-formed event payload from backend
// business logic and fans it out to the festival's sessions. Control types
// are not broadcastable.
func (s *Server) handleBroadcast(c echo.Context) error {
	festivalID := c.Param("festivalID")
	if festivalID == "" {
		return apperrors.Validation("missing festival id")
	}

	var req broadcastRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.Validation("invalid request body")
	}
	if !req.Type.Valid() || req.Type.IsControl() {
		return apperrors.Validation("type is not broadcastable").
			WithContext("type", string(req.Type))
	}

	// Decode through the payload schema for the type so malformed events are
	// rejected here instead of reaching dashboards.
	payload, err := realtime.DecodePayload(realtime.Envelope{Type: req.Type, Data: req.Data})
	if err != nil {
		return apperrors.Validation(err.Error()).
			WithContext("type", string(req.Type))
	}

	s.hub.BroadcastToFestival(festivalID, req.Type, payload)
	return c.JSON(http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.hub.Stats())
}
