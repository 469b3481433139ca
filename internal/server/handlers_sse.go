package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	apperrors "github.com/kisshan13/evstream/internal/errors"
	"github.com/kisshan13/evstream/internal/hub"
	"github.com/kisshan13/evstream/internal/metrics"
	"github.com/kisshan13/evstream/internal/sse"
)

// responseSink adapts the streaming HTTP response to the hub's Sink. The
// connection's pump is its only writer; the response itself is closed by the
// handler returning.
type responseSink struct {
	response *echo.Response
}

func (s *responseSink) Write(p []byte) (int, error) {
	return s.response.Write(p)
}

func (s *responseSink) Flush() {
	s.response.Flush()
}

func (s *responseSink) Close() error {
	return nil
}

// handleSSE serves one SSE subscription. The path channel is always
// subscribed; a comma-separated "channels" query adds more on the same
// connection.
func (s *Server) handleSSE(c echo.Context) error {
	ip := c.RealIP()
	if ok, reason := s.limits.Acquire(ip); !ok {
		metrics.ConnectionsRejectedTotal.WithLabelValues(string(reason)).Inc()
		return apperrors.LimitExceededError("connection limit reached").WithContext("reason", string(reason))
	}
	defer s.limits.Release(ip)

	conn, err := s.hub.Connect(&responseSink{response: c.Response()})
	if err != nil {
		var capErr *hub.CapacityExceededError
		if errors.As(err, &capErr) {
			metrics.ConnectionsRejectedTotal.WithLabelValues("capacity").Inc()
			return apperrors.CapacityError(capErr.Error())
		}
		return err
	}

	header := c.Response().Header()
	header.Set(echo.HeaderContentType, "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Flush()

	// Headers are streamed from here on: every failure is an SSE error
	// event followed by close, not an HTTP status.
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

	// Close the connection when the client goes away. The watch is detached
	// during Close so it cannot fire a second teardown.
	stop := make(chan struct{})
	ctx := c.Request().Context()
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()
	conn.SetCloseDetach(func() { close(stop) })

	<-conn.Done()
	return nil
}

func requestedChannels(c echo.Context) []string {
	seen := map[string]struct{}{}
	channels := []string{c.Param("channel")}
	seen[channels[0]] = struct{}{}

	for _, extra := range strings.Split(c.QueryParam("channels"), ",") {
		extra = strings.TrimSpace(extra)
		if extra == "" {
			continue
		}
		if _, ok := seen[extra]; ok {
			continue
		}
		seen[extra] = struct{}{}
		channels = append(channels, extra)
	}
	return channels
}
