package hub

import (
	"sync"

	"github.com/kisshan13/evstream/internal/metrics"
)

// ChannelIndex maps channel names to the set of subscribed connection ids.
// A channel exists only while it has at least one listener; unsubscribing the
// last listener deletes the entry.
type ChannelIndex struct {
	mu           sync.Mutex
	channels     map[string]map[string]struct{}
	maxListeners int
}

func NewChannelIndex(maxListeners int) *ChannelIndex {
	return &ChannelIndex{
		channels:     make(map[string]map[string]struct{}),
		maxListeners: maxListeners,
	}
}

// Subscribe adds the connection id to the channel, creating the channel on
// first subscribe. The listener limit applies to every subscribe; an id
// already in the set is a no-op and never counts against the limit.
func (ci *ChannelIndex) Subscribe(channel, id string) error {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	set, ok := ci.channels[channel]
	if !ok {
		set = make(map[string]struct{})
	}
	if _, member := set[id]; member {
		return nil
	}
	if len(set) >= ci.maxListeners {
		return &ChannelFullError{Channel: channel, Size: len(set)}
	}
	if !ok {
		ci.channels[channel] = set
		metrics.ChannelsActive.Set(float64(len(ci.channels)))
	}
	set[id] = struct{}{}
	return nil
}

// Unsubscribe removes the connection id from the channel and deletes the
// channel when its set empties. Unknown channel or id is a no-op.
func (ci *ChannelIndex) Unsubscribe(channel, id string) {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	set, ok := ci.channels[channel]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(ci.channels, channel)
		metrics.ChannelsActive.Set(float64(len(ci.channels)))
	}
}

// Listeners returns a snapshot of the channel's subscribed connection ids.
// An unknown channel yields an empty slice.
func (ci *ChannelIndex) Listeners(channel string) []string {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	set := ci.channels[channel]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Len returns the number of channels with at least one listener.
func (ci *ChannelIndex) Len() int {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	return len(ci.channels)
}
