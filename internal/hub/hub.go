// Package hub is the core of the push system: the connection registry, the
// channel index and the broadcast dispatcher.
package hub

import (
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultMaxConnections         = 5000
	DefaultMaxListenersPerChannel = 5000
	DefaultHeartbeatInterval      = 30 * time.Second
)

// Options configures a Hub. Zero values fall back to the defaults above.
type Options struct {
	MaxConnections         int
	MaxListenersPerChannel int
	IDPrefix               string
	HeartbeatInterval      time.Duration
	Clock                  clockwork.Clock
}

func (o Options) withDefaults() Options {
	if o.MaxConnections <= 0 {
		o.MaxConnections = DefaultMaxConnections
	}
	if o.MaxListenersPerChannel <= 0 {
		o.MaxListenersPerChannel = DefaultMaxListenersPerChannel
	}
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return o
}

// Hub owns one process's registries and broadcaster. Tests build fresh hubs;
// there is no package-level shared state.
type Hub struct {
	opts        Options
	registry    *ConnectionRegistry
	channels    *ChannelIndex
	broadcaster *Broadcaster
}

func New(opts Options) *Hub {
	opts = opts.withDefaults()
	registry := NewConnectionRegistry(opts.MaxConnections)
	channels := NewChannelIndex(opts.MaxListenersPerChannel)
	return &Hub{
		opts:        opts,
		registry:    registry,
		channels:    channels,
		broadcaster: NewBroadcaster(registry, channels),
	}
}

// Connect creates a connection for the sink and starts its writer pump.
// Fails with CapacityExceededError at the configured maximum.
func (h *Hub) Connect(sink Sink) (*Connection, error) {
	c := newConnection(newConnectionID(h.opts.IDPrefix), sink, h.opts.Clock, h.opts.HeartbeatInterval)
	c.onClose = func(c *Connection) {
		for _, channel := range c.Channels() {
			h.channels.Unsubscribe(channel, c.id)
		}
		h.registry.Remove(c.id)
	}
	if err := h.registry.add(c); err != nil {
		return nil, err
	}
	c.start()
	return c, nil
}

// Subscribe adds the connection to a channel. Subscribing a closed connection
// fails with ErrConnectionClosed; the index entry is rolled back so no dead id
// outlives its connection.
func (h *Hub) Subscribe(c *Connection, channel string) error {
	if err := h.channels.Subscribe(channel, c.id); err != nil {
		return err
	}
	if !c.addChannel(channel) {
		h.channels.Unsubscribe(channel, c.id)
		return ErrConnectionClosed
	}
	return nil
}

// Unsubscribe removes the connection from a channel.
func (h *Hub) Unsubscribe(c *Connection, channel string) {
	h.channels.Unsubscribe(channel, c.id)
	c.removeChannel(channel)
}

// Broadcaster returns the hub's dispatcher.
func (h *Hub) Broadcaster() *Broadcaster {
	return h.broadcaster
}

// Registry returns the hub's connection registry.
func (h *Hub) Registry() *ConnectionRegistry {
	return h.registry
}

// Channels returns the hub's channel index.
func (h *Hub) Channels() *ChannelIndex {
	return h.channels
}

// CloseAll closes every live connection, used on shutdown.
func (h *Hub) CloseAll() {
	h.registry.mu.Lock()
	conns := make([]*Connection, 0, len(h.registry.conns))
	for _, c := range h.registry.conns {
		conns = append(conns, c)
	}
	h.registry.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
