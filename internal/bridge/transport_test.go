package bridge

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (r *recorder) handler(payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, payload)
}

func (r *recorder) Payloads() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.payloads...)
}

func TestMemoryTransport_DeliversToAllSubscribersIncludingPublisher(t *testing.T) {
	tr := NewMemoryTransport()
	ctx := context.Background()

	r1, r2 := &recorder{}, &recorder{}
	_, err := tr.Subscribe(ctx, "topic", r1.handler)
	require.NoError(t, err)
	_, err = tr.Subscribe(ctx, "topic", r2.handler)
	require.NoError(t, err)

	require.NoError(t, tr.Publish(ctx, "topic", []byte("hello")))

	assert.Equal(t, [][]byte{[]byte("hello")}, r1.Payloads())
	assert.Equal(t, [][]byte{[]byte("hello")}, r2.Payloads())
}

func TestMemoryTransport_TopicsAreIsolated(t *testing.T) {
	tr := NewMemoryTransport()
	ctx := context.Background()

	r := &recorder{}
	_, err := tr.Subscribe(ctx, "a", r.handler)
	require.NoError(t, err)

	require.NoError(t, tr.Publish(ctx, "b", []byte("wrong topic")))
	assert.Empty(t, r.Payloads())
}

func TestMemoryTransport_CancelStopsDelivery(t *testing.T) {
	tr := NewMemoryTransport()
	ctx := context.Background()

	r := &recorder{}
	cancel, err := tr.Subscribe(ctx, "topic", r.handler)
	require.NoError(t, err)

	cancel()
	require.NoError(t, tr.Publish(ctx, "topic", []byte("after cancel")))
	assert.Empty(t, r.Payloads())
}

func TestMemoryTransport_ClosedTransportRejectsOperations(t *testing.T) {
	tr := NewMemoryTransport()
	ctx := context.Background()

	require.NoError(t, tr.Close())

	assert.Error(t, tr.Publish(ctx, "topic", []byte("x")))
	_, err := tr.Subscribe(ctx, "topic", func([]byte) {})
	assert.Error(t, err)
}
