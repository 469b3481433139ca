package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Adapter multiplexes reactive-state channels onto a transport. Any number
// of local handlers may register for one channel; the underlying transport
// subscription is created once per channel, on the first handler.
type Adapter struct {
	transport Transport
	prefix    string

	mu   sync.Mutex
	subs map[string]*adapterSub
}

type adapterSub struct {
	cancel   func()
	handlers []func(json.RawMessage)
}

// NewAdapter creates an adapter whose transport topics are the channel names
// prefixed with the given prefix, keeping state traffic apart from bridge
// topics on a shared transport.
func NewAdapter(transport Transport, prefix string) *Adapter {
	return &Adapter{
		transport: transport,
		prefix:    prefix,
		subs:      make(map[string]*adapterSub),
	}
}

func (a *Adapter) topic(channel string) string {
	return a.prefix + channel
}

// Publish marshals the message and sends it on the channel's topic.
func (a *Adapter) Publish(ctx context.Context, channel string, msg any) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal state message: %w", err)
	}
	return a.transport.Publish(ctx, a.topic(channel), raw)
}

// Subscribe registers a handler for the channel, creating the transport
// subscription if this is the channel's first handler.
func (a *Adapter) Subscribe(channel string, h func(json.RawMessage)) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	sub, ok := a.subs[channel]
	if !ok {
		sub = &adapterSub{}
		cancel, err := a.transport.Subscribe(context.Background(), a.topic(channel), func(payload []byte) {
			a.dispatch(channel, payload)
		})
		if err != nil {
			return err
		}
		sub.cancel = cancel
		a.subs[channel] = sub
	}
	sub.handlers = append(sub.handlers, h)
	return nil
}

// Unsubscribe drops the channel's transport subscription and all of its
// handlers. Unknown channel is a no-op.
func (a *Adapter) Unsubscribe(channel string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sub, ok := a.subs[channel]
	if !ok {
		return
	}
	sub.cancel()
	delete(a.subs, channel)
}

// Close drops every subscription. The shared transport stays open.
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for channel, sub := range a.subs {
		sub.cancel()
		delete(a.subs, channel)
	}
}

func (a *Adapter) dispatch(channel string, payload []byte) {
	a.mu.Lock()
	sub, ok := a.subs[channel]
	var handlers []func(json.RawMessage)
	if ok {
		handlers = append(handlers, sub.handlers...)
	}
	a.mu.Unlock()

	for _, h := range handlers {
		h(json.RawMessage(payload))
	}
}
