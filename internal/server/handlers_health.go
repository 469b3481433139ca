package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kisshan13/evstream/internal/version"
)

func (s *Server) handleLiveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Get().Version,
	})
}

// handleReadiness reports ready when the distributed transport is reachable.
// Without a checker (in-memory transport) the process is always ready.
func (s *Server) handleReadiness(c echo.Context) error {
	if s.ready != nil {
		if err := s.ready.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
