package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Streaming endpoints
	s.echo.GET("/events/:channel", s.handleSSE)
	s.echo.GET("/ws/:channel", s.handleWebSocket)

	// Publish and state API
	s.echo.POST("/api/channels/:channel/publish", s.handlePublish)
	s.echo.POST("/api/state/:key", s.handleCreateState)
	s.echo.GET("/api/state/:key", s.handleGetState)
	s.echo.PUT("/api/state/:key", s.handleSetState)
	s.echo.DELETE("/api/state/:key", s.handleRemoveState)
}
