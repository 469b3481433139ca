package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/kisshan13/evstream/internal/metrics"
)

// Envelope wraps every payload crossing the transport with the publishing
// process's instance id, so loopback-delivering transports can suppress a
// process's own messages on receive.
type Envelope struct {
	InstanceID string          `json:"instanceId"`
	Payload    json.RawMessage `json:"payload"`
}

// Bridge is an adapter over one transport topic. At most one handler is
// active at a time; installing a new one replaces the previous.
type Bridge struct {
	transport  Transport
	topic      string
	instanceID string

	mu      sync.Mutex
	handler func(json.RawMessage)
	cancel  func()
	closed  bool
}

// New subscribes to the topic and returns the bridge. The bridge does not
// own the transport; closing the bridge only tears down its subscription.
func New(transport Transport, topic string) (*Bridge, error) {
	b := &Bridge{
		transport:  transport,
		topic:      topic,
		instanceID: uuid.NewString(),
	}
	cancel, err := transport.Subscribe(context.Background(), topic, b.receive)
	if err != nil {
		return nil, err
	}
	b.cancel = cancel
	return b, nil
}

// InstanceID returns the process-unique id embedded in published envelopes.
func (b *Bridge) InstanceID() string {
	return b.instanceID
}

// Publish sends the payload to sibling processes. Failures are logged and
// counted, never propagated: a distributed-layer outage must not fail local
// broadcasts.
func (b *Bridge) Publish(payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("Dropping unserializable bridge payload", "topic", b.topic, "error", err)
		metrics.SerializationFailuresTotal.Inc()
		return
	}
	env, err := json.Marshal(Envelope{InstanceID: b.instanceID, Payload: raw})
	if err != nil {
		slog.Warn("Failed to marshal bridge envelope", "topic", b.topic, "error", err)
		return
	}
	if err := b.transport.Publish(context.Background(), b.topic, env); err != nil {
		slog.Warn("Bridge publish failed", "topic", b.topic, "error", err)
		metrics.BridgePublishErrorsTotal.Inc()
		return
	}
	metrics.BridgePublishedTotal.Inc()
}

// OnMessage installs the single active handler, replacing any previous one.
func (b *Bridge) OnMessage(handler func(payload json.RawMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = handler
}

// receive runs on the transport's delivery goroutine. Malformed envelopes
// and self-originated envelopes are discarded silently; the sender is an
// independent, unverified process.
func (b *Bridge) receive(payload []byte) {
	metrics.BridgeReceivedTotal.Inc()

	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil || env.InstanceID == "" {
		metrics.BridgeDiscardedTotal.WithLabelValues("malformed").Inc()
		return
	}
	if env.InstanceID == b.instanceID {
		metrics.BridgeDiscardedTotal.WithLabelValues("self").Inc()
		return
	}

	b.mu.Lock()
	handler := b.handler
	b.mu.Unlock()
	if handler != nil {
		handler(env.Payload)
	}
}

// Close tears down the bridge's subscription. Idempotent.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	if b.cancel != nil {
		b.cancel()
	}
}
