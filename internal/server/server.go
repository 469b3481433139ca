package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/kisshan13/evstream/internal/config"
	apperrors "github.com/kisshan13/evstream/internal/errors"
	"github.com/kisshan13/evstream/internal/hub"
	"github.com/kisshan13/evstream/internal/state"
)

// ReadyChecker reports whether the distributed transport is reachable. The
// in-memory transport is always ready, so the field may be nil.
type ReadyChecker interface {
	Ping(ctx context.Context) error
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	hub    *hub.Hub
	states *state.Registry
	limits *ConnectionLimits

	verifier AuthVerifier
	ready    ReadyChecker
}

func New(cfg *config.Config, h *hub.Hub, states *state.Registry, verifier AuthVerifier, ready ReadyChecker) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:     e,
		config:   cfg,
		hub:      h,
		states:   states,
		limits:   NewConnectionLimits(cfg.MaxConnectionsPerIP, cfg.ConnectionRatePerSecond, cfg.ConnectionRateBurst),
		verifier: verifier,
		ready:    ready,
	}
	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
