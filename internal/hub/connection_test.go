package hub

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kisshan13/evstream/internal/sse"
)

// blockingSink blocks every write until the gate opens, simulating a client
// that cannot keep up.
type blockingSink struct {
	memSink
	gate chan struct{}
}

func (s *blockingSink) Write(p []byte) (int, error) {
	<-s.gate
	return s.memSink.Write(p)
}

func TestConnection_WritesAreOrdered(t *testing.T) {
	h := newTestHub(t, Options{})

	sink := &memSink{}
	c, err := h.Connect(sink)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		c.Send(sse.Message{Event: "seq", Data: i})
	}

	waitForFrame(t, sink, "data:9\n\n")
	last := -1
	for _, line := range strings.Split(sink.String(), "\n") {
		var n int
		if _, err := fmt.Sscanf(line, "data:%d", &n); err == nil {
			require.Equal(t, last+1, n, "out of order write")
			last = n
		}
	}
	assert.Equal(t, 9, last)
}

func TestConnection_HeartbeatEmitsComments(t *testing.T) {
	fc := clockwork.NewFakeClock()
	h := newTestHub(t, Options{Clock: fc, HeartbeatInterval: 30 * time.Second})

	sink := &memSink{}
	c, err := h.Connect(sink)
	require.NoError(t, err)
	defer c.Close()

	fc.BlockUntil(1)
	fc.Advance(30 * time.Second)
	waitForFrame(t, sink, ":heartbeat\n\n")

	fc.Advance(30 * time.Second)
	require.Eventually(t, func() bool {
		return strings.Count(sink.String(), ":heartbeat\n\n") == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestConnection_HeartbeatNeverFiresAfterClose(t *testing.T) {
	fc := clockwork.NewFakeClock()
	h := newTestHub(t, Options{Clock: fc, HeartbeatInterval: 30 * time.Second})

	sink := &memSink{}
	c, err := h.Connect(sink)
	require.NoError(t, err)

	fc.BlockUntil(1)
	c.Close()
	<-c.Done()

	fc.Advance(5 * time.Minute)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, strings.Count(sink.String(), ":heartbeat"))
}

func TestConnection_CloseDetachRunsBeforeTerminalEvent(t *testing.T) {
	h := newTestHub(t, Options{})

	sink := &memSink{}
	c, err := h.Connect(sink)
	require.NoError(t, err)

	var sinkAtDetach string
	c.SetCloseDetach(func() {
		sinkAtDetach = sink.String()
	})

	c.Close()
	<-c.Done()

	assert.NotContains(t, sinkAtDetach, "event:close")
	assert.Contains(t, sink.String(), "event:close\n\n")
}

func TestConnection_DetachRegisteredAfterCloseRunsImmediately(t *testing.T) {
	h := newTestHub(t, Options{})

	c, err := h.Connect(&memSink{})
	require.NoError(t, err)
	c.Close()
	<-c.Done()

	// A close listener registered mid-teardown must still be released, or
	// the transport's watcher goroutine would linger.
	ran := false
	c.SetCloseDetach(func() { ran = true })
	assert.True(t, ran)
}

func TestConnection_SlowClientIsDisconnected(t *testing.T) {
	h := newTestHub(t, Options{})

	sink := &blockingSink{gate: make(chan struct{})}
	c, err := h.Connect(sink)
	require.NoError(t, err)

	for i := 0; i < sendQueueSize+2; i++ {
		c.Send(sse.Message{Event: "flood", Data: i})
	}
	close(sink.gate)

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("slow client was not disconnected")
	}
	assert.Equal(t, 0, h.Registry().Len())
}

func TestConnection_SendAfterCloseIsDropped(t *testing.T) {
	h := newTestHub(t, Options{})

	sink := &memSink{}
	c, err := h.Connect(sink)
	require.NoError(t, err)

	c.Close()
	<-c.Done()
	c.Send(sse.Message{Event: "late", Data: "dropped"})

	time.Sleep(50 * time.Millisecond)
	assert.NotContains(t, sink.String(), "late")
}
