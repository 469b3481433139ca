package hub

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/kisshan13/evstream/internal/metrics"
	"github.com/kisshan13/evstream/internal/sse"
)

const sendQueueSize = 16

// Sink is the transport-side output handle a connection writes to. The SSE
// handler backs it with the streaming HTTP response, the websocket handler
// with a text-message writer. A connection is the sink's only writer.
type Sink interface {
	Write(p []byte) (int, error)
	Flush()
	Close() error
}

var connSeq atomic.Uint64

// newConnectionID builds a unique connection id from a time-based prefix, a
// random suffix and a monotonic counter. The counter keeps ids unique even
// when many connections are created within the same millisecond.
func newConnectionID(prefix string) string {
	return fmt.Sprintf("%s%x-%s-%d", prefix, time.Now().UnixMilli(), uuid.NewString()[:8], connSeq.Add(1))
}

// Connection wraps one client's sink. All writes go through a single pump
// goroutine fed by a bounded queue, so per-connection ordering holds and no
// two goroutines ever write the sink concurrently.
type Connection struct {
	id        string
	sink      Sink
	clock     clockwork.Clock
	heartbeat time.Duration

	sendCh    chan []byte
	done      chan struct{}
	finished  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu       sync.Mutex
	channels map[string]struct{}
	closed   bool
	detach   func()

	onClose func(*Connection)
}

func newConnection(id string, sink Sink, clock clockwork.Clock, heartbeat time.Duration) *Connection {
	return &Connection{
		id:        id,
		sink:      sink,
		clock:     clock,
		heartbeat: heartbeat,
		sendCh:    make(chan []byte, sendQueueSize),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		channels:  make(map[string]struct{}),
	}
}

func (c *Connection) start() {
	c.wg.Add(1)
	go c.run()
}

// ID returns the connection's unique identifier.
func (c *Connection) ID() string {
	return c.id
}

// Done is closed once the connection's teardown has completed, including the
// terminal event write. Transport handlers block on it before ending the
// HTTP response.
func (c *Connection) Done() <-chan struct{} {
	return c.finished
}

// Closed reports whether Close has been called.
func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// SetCloseDetach registers a function that detaches the transport's
// close-event listener. It is invoked exactly once: during Close, before the
// terminal event is written, or immediately when Close has already begun, so
// a listener registered mid-teardown is still released.
func (c *Connection) SetCloseDetach(f func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		f()
		return
	}
	c.detach = f
	c.mu.Unlock()
}

// Send encodes the message and queues it for delivery.
func (c *Connection) Send(msg sse.Message) {
	c.Enqueue(sse.Encode(msg))
}

// Enqueue queues an already-encoded frame. A closed connection drops the
// frame; a full queue disconnects the client, since an unbounded backlog for
// a reader that cannot keep up is worse than a reconnect.
func (c *Connection) Enqueue(frame []byte) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.sendCh <- frame:
	default:
		slog.Warn("Disconnecting slow client", "connection_id", c.id)
		metrics.SlowClientsDisconnectedTotal.Inc()
		go c.Close()
	}
}

func (c *Connection) run() {
	defer c.wg.Done()

	var heartbeatCh <-chan time.Time
	if c.heartbeat > 0 {
		ticker := c.clock.NewTicker(c.heartbeat)
		defer ticker.Stop()
		heartbeatCh = ticker.Chan()
	}

	for {
		select {
		case frame := <-c.sendCh:
			if _, err := c.sink.Write(frame); err != nil {
				go c.Close()
				return
			}
			c.sink.Flush()
			metrics.MessagesSentTotal.Inc()
		case <-heartbeatCh:
			if _, err := c.sink.Write(sse.Comment("heartbeat")); err != nil {
				go c.Close()
				return
			}
			c.sink.Flush()
		case <-c.done:
			return
		}
	}
}

// Close tears the connection down. Ordering matters: the pump (and with it
// the heartbeat ticker) stops first, then the transport close listener is
// detached, then the terminal event is written, then subscriptions and the
// registry entry are removed. Safe to call from any goroutine; double close
// is a no-op.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		detach := c.detach
		c.mu.Unlock()

		close(c.done)
		c.wg.Wait()

		if detach != nil {
			detach()
		}

		// Pump has exited, this goroutine is now the sink's only writer.
		if _, err := c.sink.Write(sse.Encode(sse.Message{Event: "close"})); err == nil {
			c.sink.Flush()
		}

		if c.onClose != nil {
			c.onClose(c)
		}
		_ = c.sink.Close()

		metrics.ConnectionsActive.Dec()
		slog.Debug("Connection closed", "connection_id", c.id)
		close(c.finished)
	})
}

// addChannel records the subscription on the connection. It fails once Close
// has begun, so a racing subscribe cannot slip a dead id past the close-time
// cleanup.
func (c *Connection) addChannel(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.channels[channel] = struct{}{}
	return true
}

func (c *Connection) removeChannel(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.channels, channel)
}

// Channels returns a snapshot of the connection's subscribed channels.
func (c *Connection) Channels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		out = append(out, ch)
	}
	return out
}
