package hub

import (
	"encoding/json"
	"sync"

	"github.com/kisshan13/evstream/internal/metrics"
	"github.com/kisshan13/evstream/internal/sse"
)

// Relay forwards a broadcast to sibling processes. Publish must never block
// on remote acknowledgment and must swallow transport failures.
type Relay interface {
	Publish(payload any)
}

// RelayEnvelope is the payload forwarded to sibling processes for a channel
// broadcast. It carries the original, unwrapped message; each receiving
// process re-applies the channel wrap locally.
type RelayEnvelope struct {
	Channel string      `json:"channel"`
	Message sse.Message `json:"message"`
}

// Broadcaster fans a message out to every listener of a channel.
type Broadcaster struct {
	registry *ConnectionRegistry
	channels *ChannelIndex

	mu    sync.Mutex
	relay Relay
}

func NewBroadcaster(registry *ConnectionRegistry, channels *ChannelIndex) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		channels: channels,
	}
}

// SetRelay binds a distributed relay. Passing nil unbinds it.
func (b *Broadcaster) SetRelay(r Relay) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.relay = r
}

// Send delivers the message to every listener of the channel, with the data
// wrapped so multi-channel clients can tell which channel it came from.
// Listener ids without a live connection are skipped; the race between an
// unsubscribe and a broadcast is benign. The wrapped message is returned.
func (b *Broadcaster) Send(channel string, msg sse.Message) sse.Message {
	wrapped := wrapChannel(channel, msg)
	b.fanOut(channel, wrapped)
	metrics.BroadcastsTotal.WithLabelValues("channel").Inc()
	return wrapped
}

// Emit delivers the message to every listener of the channel without the
// channel wrap. Reactive state uses this path: the event name already carries
// the state key.
func (b *Broadcaster) Emit(channel string, msg sse.Message) {
	b.fanOut(channel, msg)
	metrics.BroadcastsTotal.WithLabelValues("state").Inc()
}

// SendAndRelay broadcasts locally and forwards the original, unwrapped
// message to sibling processes when a relay is bound.
func (b *Broadcaster) SendAndRelay(channel string, msg sse.Message) sse.Message {
	wrapped := b.Send(channel, msg)

	b.mu.Lock()
	relay := b.relay
	b.mu.Unlock()
	if relay != nil {
		relay.Publish(RelayEnvelope{Channel: channel, Message: msg})
	}
	return wrapped
}

func (b *Broadcaster) fanOut(channel string, msg sse.Message) {
	frame := sse.Encode(msg)
	for _, id := range b.channels.Listeners(channel) {
		c, ok := b.registry.Get(id)
		if !ok {
			continue
		}
		c.Enqueue(frame)
	}
}

// wrapChannel merges the channel name into the message data. Object data
// becomes {"ch": channel, ...data}; anything else becomes
// {"ch": channel, "data": data}.
func wrapChannel(channel string, msg sse.Message) sse.Message {
	wrapped := msg

	switch d := msg.Data.(type) {
	case nil:
		wrapped.Data = map[string]any{"ch": channel}
	case string:
		wrapped.Data = map[string]any{"ch": channel, "data": d}
	default:
		raw, err := json.Marshal(d)
		if err != nil {
			// Leave the unserializable value in place: encoding will
			// degrade it to an empty payload and count the failure.
			wrapped.Data = map[string]any{"ch": channel, "data": d}
			return wrapped
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			wrapped.Data = map[string]any{"ch": channel, "data": d}
			return wrapped
		}
		if obj, ok := decoded.(map[string]any); ok {
			merged := make(map[string]any, len(obj)+1)
			for k, v := range obj {
				merged[k] = v
			}
			merged["ch"] = channel
			wrapped.Data = merged
		} else {
			wrapped.Data = map[string]any{"ch": channel, "data": decoded}
		}
	}
	return wrapped
}
