// Package bridge relays local broadcasts and state changes across
// independent server processes over a publish/subscribe transport.
package bridge

import (
	"context"
	"errors"
	"sync"
)

// Handler receives raw payloads delivered by a transport subscription. It
// runs on the transport's delivery goroutine and must only call
// concurrency-safe entry points.
type Handler func(payload []byte)

// Transport is a publish/subscribe channel with at-least-once, unordered
// delivery to all subscribers of a topic, including the publisher itself.
type Transport interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe registers a handler for a topic and returns a cancel
	// function that tears the subscription down.
	Subscribe(ctx context.Context, topic string, h Handler) (func(), error)
	Close() error
}

var errTransportClosed = errors.New("transport is closed")

// MemoryTransport is an in-process loopback Transport. It is the default when
// no Redis URL is configured and the workhorse of the test suite. Delivery is
// synchronous and includes the publisher's own subscriptions.
type MemoryTransport struct {
	mu     sync.Mutex
	subs   map[string]map[int]Handler
	nextID int
	closed bool
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{subs: make(map[string]map[int]Handler)}
}

func (t *MemoryTransport) Publish(_ context.Context, topic string, payload []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errTransportClosed
	}
	handlers := make([]Handler, 0, len(t.subs[topic]))
	for _, h := range t.subs[topic] {
		handlers = append(handlers, h)
	}
	t.mu.Unlock()

	for _, h := range handlers {
		h(payload)
	}
	return nil
}

func (t *MemoryTransport) Subscribe(_ context.Context, topic string, h Handler) (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, errTransportClosed
	}
	if t.subs[topic] == nil {
		t.subs[topic] = make(map[int]Handler)
	}
	id := t.nextID
	t.nextID++
	t.subs[topic][id] = h

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs[topic], id)
		if len(t.subs[topic]) == 0 {
			delete(t.subs, topic)
		}
	}, nil
}

func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.subs = make(map[string]map[int]Handler)
	return nil
}
