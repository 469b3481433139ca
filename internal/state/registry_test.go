package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kisshan13/evstream/internal/bridge"
	"github.com/kisshan13/evstream/internal/hub"
)

// testProcess bundles the per-process pieces of a simulated server instance
// sharing one transport with its siblings.
type testProcess struct {
	hub      *hub.Hub
	registry *Registry
}

func newTestProcess(t *testing.T, transport bridge.Transport) *testProcess {
	t.Helper()

	h := hub.New(hub.Options{HeartbeatInterval: time.Hour})
	t.Cleanup(h.CloseAll)

	adapter := bridge.NewAdapter(transport, "test:state:")
	lifecycle, err := bridge.New(transport, "test:lifecycle")
	require.NoError(t, err)

	r := NewRegistry(h.Broadcaster(), adapter, lifecycle)
	t.Cleanup(r.Close)
	t.Cleanup(adapter.Close)

	return &testProcess{hub: h, registry: r}
}

func TestRegistry_CreateIsIdempotent(t *testing.T) {
	transport := newPublishCountingTransport()
	p := newTestProcess(t, transport)

	s1 := p.registry.Create("counter", 0)
	s2 := p.registry.Create("counter", 99)

	assert.Same(t, s1, s2)
	assert.Equal(t, 0, s1.Get(), "second Create must not reset the value")
	assert.EqualValues(t, 1, transport.publishes.Load(), "one lifecycle event for one creation")
}

func TestRegistry_RemoveAbsentKeyPublishesNothing(t *testing.T) {
	transport := newPublishCountingTransport()
	p := newTestProcess(t, transport)

	p.registry.Remove("never-created")

	assert.Zero(t, transport.publishes.Load())
}

func TestRegistry_CreateMaterializesOnSiblings(t *testing.T) {
	transport := bridge.NewMemoryTransport()
	p1 := newTestProcess(t, transport)
	p2 := newTestProcess(t, transport)

	p1.registry.Create("score", 7)

	require.Eventually(t, func() bool {
		_, ok := p2.registry.Get("score")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	s2, _ := p2.registry.Get("score")
	// Lifecycle payloads travel as JSON, so numbers arrive as float64.
	assert.Equal(t, float64(7), s2.Get())
}

func TestRegistry_ValueUpdatesSyncAcrossSiblings(t *testing.T) {
	transport := bridge.NewMemoryTransport()
	p1 := newTestProcess(t, transport)
	p2 := newTestProcess(t, transport)

	s1 := p1.registry.Create("counter", 0)
	require.Eventually(t, func() bool {
		_, ok := p2.registry.Get("counter")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	sink2 := subscribedSink(t, p2.hub, "counter")

	s1.Set(func(current any) any { return 5 })

	// The remote process applies the update and rebroadcasts to its own
	// listeners.
	waitForFrame(t, sink2, "event:counter\ndata:{\"value\":5}\n\n")
	s2, _ := p2.registry.Get("counter")
	assert.Equal(t, float64(5), s2.Get())
	assert.Equal(t, 5, s1.Get())
}

func TestRegistry_RemoteUpdateIsNotRepublished(t *testing.T) {
	transport := newPublishCountingTransport()
	p1 := newTestProcess(t, transport)
	newTestProcess(t, transport)

	s1 := p1.registry.Create("counter", 0)
	before := transport.publishes.Load()

	s1.Set(func(current any) any { return 1 })

	require.Eventually(t, func() bool {
		return transport.publishes.Load() == before+1
	}, 2*time.Second, 5*time.Millisecond)

	// The sibling applied the value without publishing a fresh update.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before+1, transport.publishes.Load())
}

func TestRegistry_RemoveSyncsAcrossSiblings(t *testing.T) {
	transport := bridge.NewMemoryTransport()
	p1 := newTestProcess(t, transport)
	p2 := newTestProcess(t, transport)

	p1.registry.Create("ephemeral", "x")
	require.Eventually(t, func() bool {
		_, ok := p2.registry.Get("ephemeral")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	p1.registry.Remove("ephemeral")

	require.Eventually(t, func() bool {
		_, ok := p2.registry.Get("ephemeral")
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRegistry_RemoteCreateForExistingKeyKeepsLocalValue(t *testing.T) {
	transport := bridge.NewMemoryTransport()
	p1 := newTestProcess(t, transport)
	p2 := newTestProcess(t, transport)

	s2 := p2.registry.Create("shared", "local")
	p1.registry.Create("shared", "remote")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, "local", s2.Get())
	got, ok := p2.registry.Get("shared")
	require.True(t, ok)
	assert.Same(t, s2, got)
}

func TestRegistry_CloseStopsSync(t *testing.T) {
	transport := bridge.NewMemoryTransport()
	p1 := newTestProcess(t, transport)
	p2 := newTestProcess(t, transport)

	p2.registry.Close()
	p1.registry.Create("late", 1)

	time.Sleep(50 * time.Millisecond)
	_, ok := p2.registry.Get("late")
	assert.False(t, ok)
}
