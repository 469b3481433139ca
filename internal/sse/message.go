// Package sse implements the event-stream wire format shared by every
// delivery path: the SSE HTTP endpoint, the websocket endpoint (which carries
// the same frames as text messages) and the heartbeat pump.
package sse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kisshan13/evstream/internal/metrics"
)

// DefaultEvent is used when a message does not name an event.
const DefaultEvent = "message"

// Message is a single push event. Data may be a string (sent verbatim) or any
// JSON-marshalable value (sent as single-line JSON).
type Message struct {
	ID    string `json:"id,omitempty"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// Payload returns the serialized data line for the message. A value that
// cannot be marshaled yields an empty payload, never an error; the drop is
// logged and counted so it is observable.
func (m Message) Payload() string {
	switch d := m.Data.(type) {
	case nil:
		return ""
	case string:
		return d
	default:
		b, err := json.Marshal(d)
		if err != nil {
			slog.Warn("Dropping unserializable message data", "event", m.Event, "error", err)
			metrics.SerializationFailuresTotal.Inc()
			return ""
		}
		return string(b)
	}
}

// Encode renders the message in event-stream framing:
//
//	id:<id>          (only when ID is set)
//	event:<event>    ("message" when unset)
//	data:<payload>   (omitted when the payload is empty)
//	                 (blank line terminator)
func Encode(m Message) []byte {
	var b bytes.Buffer
	if m.ID != "" {
		fmt.Fprintf(&b, "id:%s\n", m.ID)
	}
	event := m.Event
	if event == "" {
		event = DefaultEvent
	}
	fmt.Fprintf(&b, "event:%s\n", event)
	if data := m.Payload(); data != "" {
		fmt.Fprintf(&b, "data:%s\n", data)
	}
	b.WriteByte('\n')
	return b.Bytes()
}

// Comment renders an SSE comment frame. Comments are ignored by clients and
// are used for heartbeats.
func Comment(text string) []byte {
	return []byte(":" + text + "\n\n")
}
