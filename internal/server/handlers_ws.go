package server

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	apperrors "github.com/kisshan13/evstream/internal/errors"
	"github.com/kisshan13/evstream/internal/hub"
	"github.com/kisshan13/evstream/internal/metrics"
	"github.com/kisshan13/evstream/internal/sse"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsSink delivers the same event-stream frames over websocket text messages.
type wsSink struct {
	conn *websocket.Conn
}

func (s *wsSink) Write(p []byte) (int, error) {
	if err := s.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsSink) Flush() {}

func (s *wsSink) Close() error {
	return s.conn.Close()
}

// handleWebSocket serves one websocket subscription, mirroring the SSE
// handler's admission, auth and subscribe flow.
func (s *Server) handleWebSocket(c echo.Context) error {
	ip := c.RealIP()
	if ok, reason := s.limits.Acquire(ip); !ok {
		metrics.ConnectionsRejectedTotal.WithLabelValues(string(reason)).Inc()
		return apperrors.LimitExceededError("connection limit reached").WithContext("reason", string(reason))
	}
	defer s.limits.Release(ip)

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	conn, err := s.hub.Connect(&wsSink{conn: ws})
	if err != nil {
		var capErr *hub.CapacityExceededError
		if errors.As(err, &capErr) {
			metrics.ConnectionsRejectedTotal.WithLabelValues("capacity").Inc()
		}
		_ = ws.Close()
		return nil
	}

	verdict := s.authenticate(c.QueryParam(s.config.AuthQueryParam))
	switch verdict.Decision {
	case AuthRejected:
		conn.Send(sse.Message{Event: "error", Data: map[string]any{"error": "authentication failed"}})
		conn.Close()
		<-conn.Done()
		return nil
	case AuthAcceptedWithMessage:
		if verdict.Message != nil {
			conn.Send(*verdict.Message)
		}
	}

	for _, channel := range requestedChannels(c) {
		if err := s.hub.Subscribe(conn, channel); err != nil {
			conn.Send(sse.Message{Event: "error", Data: map[string]any{"error": err.Error()}})
			conn.Close()
			<-conn.Done()
			return nil
		}
	}

	conn.Send(sse.Message{Event: "connected", Data: map[string]any{"id": conn.ID()}})

	// The read loop is the websocket's close listener: it unblocks when the
	// client disconnects. Once detached it stops triggering teardown, so a
	// server-side close cannot be reported twice.
	stop := make(chan struct{})
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				select {
				case <-stop:
				default:
					conn.Close()
				}
				return
			}
		}
	}()
	conn.SetCloseDetach(func() { close(stop) })

	<-conn.Done()
	return nil
}
