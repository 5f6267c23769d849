// Package server wires the orchestrator's core components into an HTTP
// API, grounded on the teacher's per-resource router shape
// (server/router/...) but collapsed from its grpc-gateway/connect wrapping
// down to direct echo.HandlerFunc routes, the plain-REST shape spec §6's
// table describes.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/corrinhale/taskforge/internal/boot"
	"github.com/corrinhale/taskforge/internal/core"
)

// Server owns the echo instance and every component it dispatches requests
// into.
type Server struct {
	echo      *echo.Echo
	core      *core.Core
	metrics   *boot.Metrics
	startedAt time.Time
	log       *slog.Logger
}

// NewServer builds the echo instance, registers every route in spec §6's
// HTTP surface, and returns a Server ready for Start.
func NewServer(c *core.Core, reg *prometheus.Registry) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}))

	s := &Server{
		echo:      e,
		core:      c,
		metrics:   boot.NewMetrics(reg),
		startedAt: time.Now(),
		log:       slog.Default().With("component", "server"),
	}

	s.registerRoutes(reg)
	return s
}

// Start begins listening on addr (empty) / port from the core's config.
// It starts the listener on its own goroutine and returns at once, without
// waiting for the listener to be up; the caller waits on ctx or a signal
// channel and calls Shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := s.core.Config.Addr + portSuffix(s.core.Config.Port)
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			s.log.Error("server stopped", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

func portSuffix(port int) string {
	return ":" + strconv.Itoa(port)
}
