package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mimi6060/festivals-sub018/internal/realtime"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/stats", s.handleStats)

	// WebSocket upgrade routes. The channel filter is decided by the route:
	// the bare festival route delivers everything, the suffixed routes the
	// dashboard and alerts subsets.
	s.echo.GET("/ws/:festivalID", s.handleWebSocket(realtime.ChannelAll))
	s.echo.GET("/ws/:festivalID/dashboard", s.handleWebSocket(realtime.ChannelDashboard))
	s.echo.GET("/ws/:festivalID/alerts", s.handleWebSocket(realtime.ChannelAlerts))

	// Event origination API for backend business logic. Auth is terminated
	// upstream; this listener is not exposed publicly.
	s.echo.POST("/internal/broadcast/:festivalID", s.handleBroadcast,
		newRateLimiter(s.config.BroadcastRate, s.config.BroadcastBurst))
}
