package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mimi6060/festivals-sub018/internal/config"
	"github.com/mimi6060/festivals-sub018/internal/logging"
	"github.com/mimi6060/festivals-sub018/internal/realtime"
	"github.com/mimi6060/festivals-sub018/internal/server"
	"github.com/mimi6060/festivals-sub018/internal/version"
)

func runGracefulShutdown(srv *server.Server, hub *realtime.Hub) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		hub.Stop()
		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.Init(cfg.LogLevel, cfg.LogFormat)
	info := version.Get()
	slog.Info("Application starting",
		"env", cfg.AppEnv,
		"port", cfg.Port,
		"version", info.Version,
		"commit", info.Commit,
	)

	hub := realtime.NewHub(clock, slog.Default())
	srv := server.NewServer(cfg, hub, clock)

	done := runGracefulShutdown(srv, hub)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
