package state

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kisshan13/evstream/internal/bridge"
	"github.com/kisshan13/evstream/internal/hub"
)

// frameSink captures everything a connection writes as one growing string.
type frameSink struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (s *frameSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *frameSink) Flush()       {}
func (s *frameSink) Close() error { return nil }

func (s *frameSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func waitForFrame(t *testing.T, sink *frameSink, substr string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return strings.Contains(sink.String(), substr)
	}, 2*time.Second, 5*time.Millisecond, "sink never received %q, got %q", substr, sink.String())
}

// publishCountingTransport counts Publish calls on top of the in-memory
// loopback behaviour.
type publishCountingTransport struct {
	*bridge.MemoryTransport
	publishes atomic.Int64
}

func newPublishCountingTransport() *publishCountingTransport {
	return &publishCountingTransport{MemoryTransport: bridge.NewMemoryTransport()}
}

func (t *publishCountingTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	t.publishes.Add(1)
	return t.MemoryTransport.Publish(ctx, topic, payload)
}

// subscribedSink connects a sink to the hub and subscribes it to a channel.
func subscribedSink(t *testing.T, h *hub.Hub, channel string) *frameSink {
	t.Helper()
	sink := &frameSink{}
	conn, err := h.Connect(sink)
	require.NoError(t, err)
	require.NoError(t, h.Subscribe(conn, channel))
	return sink
}

func newTestHub(t *testing.T) *hub.Hub {
	t.Helper()
	h := hub.New(hub.Options{HeartbeatInterval: time.Hour})
	t.Cleanup(h.CloseAll)
	return h
}

func TestState_SetBroadcastsWrappedValue(t *testing.T) {
	h := newTestHub(t)
	sink := subscribedSink(t, h, "counter")

	r := NewRegistry(h.Broadcaster(), nil, nil)
	s := r.Create("counter", 0)

	s.Set(func(current any) any { return 1 })

	waitForFrame(t, sink, "event:counter\ndata:{\"value\":1}\n\n")
	assert.NotContains(t, sink.String(), `"ch"`)
}

func TestState_SetEqualValueIsSilent(t *testing.T) {
	h := newTestHub(t)
	sink := subscribedSink(t, h, "counter")

	transport := newPublishCountingTransport()
	adapter := bridge.NewAdapter(transport, "test:state:")
	t.Cleanup(adapter.Close)

	r := NewRegistry(h.Broadcaster(), adapter, nil)
	s := r.Create("counter", 1)

	// A JSON round trip turns ints into float64; the two must still
	// compare equal.
	s.Set(func(current any) any { return float64(1) })

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sink.String())
	assert.Zero(t, transport.publishes.Load())
}

func TestState_SetPublishesToAdapterOnce(t *testing.T) {
	h := newTestHub(t)

	transport := newPublishCountingTransport()
	adapter := bridge.NewAdapter(transport, "test:state:")
	t.Cleanup(adapter.Close)

	r := NewRegistry(h.Broadcaster(), adapter, nil)
	s := r.Create("score", 0)

	s.Set(func(current any) any { return 42 })

	require.Eventually(t, func() bool {
		return transport.publishes.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)

	// The loopback delivery of our own publish must not trigger a second
	// publish cycle.
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, transport.publishes.Load())
	assert.Equal(t, 42, s.Get())
}

func TestState_SetAfterRemoveIsNoop(t *testing.T) {
	h := newTestHub(t)
	sink := subscribedSink(t, h, "gone")

	r := NewRegistry(h.Broadcaster(), nil, nil)
	s := r.Create("gone", "initial")
	r.Remove("gone")

	s.Set(func(current any) any { return "changed" })

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sink.String())
	assert.Equal(t, "initial", s.Get())
}

func TestState_TransformMayReadOwnState(t *testing.T) {
	h := newTestHub(t)
	sink := subscribedSink(t, h, "counter")

	r := NewRegistry(h.Broadcaster(), nil, nil)
	s := r.Create("counter", 1)

	// The transform runs without the value lock held, so reading the state
	// from inside it must not deadlock.
	s.Set(func(current any) any { return s.Get().(int) + 1 })

	waitForFrame(t, sink, "event:counter\ndata:{\"value\":2}\n\n")
	assert.Equal(t, 2, s.Get())
}

func TestState_GetHasNoSideEffects(t *testing.T) {
	h := newTestHub(t)
	sink := subscribedSink(t, h, "quiet")

	r := NewRegistry(h.Broadcaster(), nil, nil)
	s := r.Create("quiet", map[string]any{"a": 1})

	for i := 0; i < 3; i++ {
		assert.Equal(t, map[string]any{"a": 1}, s.Get())
	}

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sink.String())
}
