package hub

import (
	"sync"

	"github.com/kisshan13/evstream/internal/metrics"
)

// ConnectionRegistry tracks live connections and enforces the maximum
// concurrent connection count. One lock domain; only registry methods touch
// the map.
type ConnectionRegistry struct {
	mu    sync.Mutex
	conns map[string]*Connection
	max   int
}

func NewConnectionRegistry(max int) *ConnectionRegistry {
	return &ConnectionRegistry{
		conns: make(map[string]*Connection),
		max:   max,
	}
}

// add stores the connection, failing with CapacityExceededError when the
// registry is at capacity.
func (r *ConnectionRegistry) add(c *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.conns) >= r.max {
		return &CapacityExceededError{Max: r.max}
	}
	r.conns[c.id] = c
	metrics.ConnectionsActive.Inc()
	return nil
}

// Remove deletes the connection entry. Removing an absent id is a no-op.
func (r *ConnectionRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

// Get returns the live connection for an id, if any.
func (r *ConnectionRegistry) Get(id string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	return c, ok
}

// Len returns the current connection count.
func (r *ConnectionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Max returns the configured maximum connection count.
func (r *ConnectionRegistry) Max() int {
	return r.max
}
