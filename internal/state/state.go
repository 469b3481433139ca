// Package state implements named reactive values that broadcast on change
// and stay synchronized across server processes.
package state

import (
	"context"
	"encoding/json"
	"log/slog"
	"reflect"
	"sync"

	"github.com/kisshan13/evstream/internal/bridge"
	"github.com/kisshan13/evstream/internal/hub"
	"github.com/kisshan13/evstream/internal/metrics"
	"github.com/kisshan13/evstream/internal/sse"
)

// DefaultWrapKey is the field name the value is nested under in broadcast
// payloads.
const DefaultWrapKey = "value"

// State is a named value with change detection. The value mutates only
// through Set; a transform returning an equal value produces no broadcast and
// no publish.
type State struct {
	key         string
	wrapKey     string
	broadcaster *hub.Broadcaster
	adapter     *bridge.Adapter

	// setMu serializes Set calls; mu guards the fields below. The transform
	// runs under setMu only, so it may call Get on the same state.
	setMu sync.Mutex

	mu      sync.Mutex
	value   any
	removed bool
}

func newState(key string, initial any, wrapKey string, broadcaster *hub.Broadcaster, adapter *bridge.Adapter) *State {
	if wrapKey == "" {
		wrapKey = DefaultWrapKey
	}
	s := &State{
		key:         key,
		wrapKey:     wrapKey,
		broadcaster: broadcaster,
		adapter:     adapter,
		value:       initial,
	}
	if adapter != nil {
		if err := adapter.Subscribe(key, s.applyRemote); err != nil {
			slog.Warn("State adapter subscription failed", "key", key, "error", err)
		}
	}
	return s
}

// Key returns the state's name, which is also its broadcast channel.
func (s *State) Key() string {
	return s.key
}

// Get returns the current value with no side effects.
func (s *State) Get() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Set replaces the value with transform(current). When the result differs
// from the current value it is stored, broadcast on the state's channel, and
// published to the adapter when one is bound. An equal result does nothing.
// Set on a removed state is a no-op. Concurrent Sets are serialized; the
// transform itself runs without the value lock held.
func (s *State) Set(transform func(current any) any) {
	s.setMu.Lock()
	defer s.setMu.Unlock()

	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return
	}
	current := s.value
	s.mu.Unlock()

	next := transform(current)

	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return
	}
	if equal(next, s.value) {
		s.mu.Unlock()
		return
	}
	s.value = next
	adapter := s.adapter
	s.mu.Unlock()

	metrics.StateUpdatesTotal.Inc()
	payload := map[string]any{s.wrapKey: next}
	s.broadcaster.Emit(s.key, sse.Message{Event: s.key, Data: payload})

	if adapter != nil {
		// Fire and forget; Set does not wait for remote acknowledgment.
		go func() {
			if err := adapter.Publish(context.Background(), s.key, payload); err != nil {
				slog.Warn("State publish failed", "key", s.key, "error", err)
				metrics.BridgePublishErrorsTotal.Inc()
			}
		}()
	}
}

// applyRemote handles a value update from a sibling process: apply locally,
// rebroadcast, never re-publish. The equality gate also absorbs the adapter's
// loopback delivery of this process's own publishes.
func (s *State) applyRemote(raw json.RawMessage) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	next, ok := payload[s.wrapKey]
	if !ok {
		return
	}

	s.mu.Lock()
	if s.removed || equal(next, s.value) {
		s.mu.Unlock()
		return
	}
	s.value = next
	s.mu.Unlock()

	metrics.StateRemoteUpdatesTotal.Inc()
	s.broadcaster.Emit(s.key, sse.Message{Event: s.key, Data: map[string]any{s.wrapKey: next}})
}

// close marks the state removed and drops its adapter subscription. The
// state must not be reused afterwards.
func (s *State) close() {
	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return
	}
	s.removed = true
	adapter := s.adapter
	s.mu.Unlock()

	if adapter != nil {
		adapter.Unsubscribe(s.key)
	}
}

// equal compares values structurally after JSON normalization, so a local
// int and the float64 the same number becomes after a JSON round trip
// compare equal.
func equal(a, b any) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func normalize(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}
