package hub

import (
	"errors"
	"fmt"
)

// ErrConnectionClosed is returned when subscribing on a connection whose
// teardown has already begun.
var ErrConnectionClosed = errors.New("connection is closed")

// CapacityExceededError is returned when the registry is at its configured
// maximum connection count.
type CapacityExceededError struct {
	Max int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("connection capacity exceeded: limit of %d reached", e.Max)
}

// ChannelFullError is returned when a channel is at its configured maximum
// listener count.
type ChannelFullError struct {
	Channel string
	Size    int
}

func (e *ChannelFullError) Error() string {
	return fmt.Sprintf("channel %q is full: %d listeners", e.Channel, e.Size)
}
