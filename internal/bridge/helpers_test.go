package bridge

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hubSink is a hub.Sink capturing frames for cross-process test assertions.
type hubSink struct {
	mu  sync.Mutex
	buf strings.Builder
}

func newHubSink() *hubSink {
	return &hubSink{}
}

func (s *hubSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *hubSink) Flush() {}

func (s *hubSink) Close() error { return nil }

func (s *hubSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func (s *hubSink) waitFor(t *testing.T, substr string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return strings.Contains(s.String(), substr)
	}, 2*time.Second, 5*time.Millisecond, "sink never received %q, got %q", substr, s.String())
}

func (s *hubSink) assertCount(t *testing.T, substr string, want int) {
	t.Helper()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, want, strings.Count(s.String(), substr))
}
