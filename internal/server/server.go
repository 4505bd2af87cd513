package server

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mimi6060/festivals-sub018/internal/config"
	apperrors "github.com/mimi6060/festivals-sub018/internal/errors"
	"github.com/mimi6060/festivals-sub018/internal/realtime"
)

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	hub       *realtime.Hub
	limits    *ConnectionLimits
	clock     clockwork.Clock
	startTime time.Time
}

func NewServer(cfg *config.Config, hub *realtime.Hub, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(requestIDMiddleware())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:      e,
		config:    cfg,
		hub:       hub,
		limits:    NewConnectionLimits(cfg.MaxConnections, cfg.MaxConnectionsPerIP, cfg.ConnectionRate, cfg.ConnectionBurst),
		clock:     clock,
		startTime: clock.Now(),
	}
	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying HTTP handler for tests.
func (s *Server) Handler() *echo.Echo {
	return s.echo
}
