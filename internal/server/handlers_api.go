package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "github.com/kisshan13/evstream/internal/errors"
	"github.com/kisshan13/evstream/internal/sse"
)

type publishRequest struct {
	Event string `json:"event"`
	ID    string `json:"id"`
	Data  any    `json:"data"`
}

// handlePublish broadcasts a message to a channel and relays it to sibling
// processes. Broadcasting to a channel with no listeners is a no-op, so the
// request is always accepted.
func (s *Server) handlePublish(c echo.Context) error {
	var req publishRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	channel := c.Param("channel")
	s.hub.Broadcaster().SendAndRelay(channel, sse.Message{
		Event: req.Event,
		ID:    req.ID,
		Data:  req.Data,
	})
	return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
}

type stateRequest struct {
	Value any `json:"value"`
}

type stateResponse struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// handleCreateState creates a reactive state. Creation is idempotent: a key
// that already exists keeps its current value.
func (s *Server) handleCreateState(c echo.Context) error {
	var req stateRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	key := c.Param("key")
	st := s.states.Create(key, req.Value)
	return c.JSON(http.StatusOK, stateResponse{Key: key, Value: st.Get()})
}

func (s *Server) handleGetState(c echo.Context) error {
	key := c.Param("key")
	st, ok := s.states.Get(key)
	if !ok {
		return apperrors.NotFoundError("state not found").WithContext("key", key)
	}
	return c.JSON(http.StatusOK, stateResponse{Key: key, Value: st.Get()})
}

// handleSetState replaces the state's value. The change-detection gate means
// setting an equal value broadcasts nothing.
func (s *Server) handleSetState(c echo.Context) error {
	var req stateRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	key := c.Param("key")
	st, ok := s.states.Get(key)
	if !ok {
		return apperrors.NotFoundError("state not found").WithContext("key", key)
	}
	st.Set(func(any) any { return req.Value })
	return c.JSON(http.StatusOK, stateResponse{Key: key, Value: st.Get()})
}

func (s *Server) handleRemoveState(c echo.Context) error {
	s.states.Remove(c.Param("key"))
	return c.NoContent(http.StatusNoContent)
}
