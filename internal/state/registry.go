package state

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/kisshan13/evstream/internal/bridge"
	"github.com/kisshan13/evstream/internal/hub"
)

// lifecycleEvent synchronizes state creation and removal across processes.
// Value updates travel over the adapter, not over this bridge.
type lifecycleEvent struct {
	Type         string `json:"type"`
	Key          string `json:"key"`
	InitialValue any    `json:"initialValue,omitempty"`
}

const (
	lifecycleCreate = "create"
	lifecycleRemove = "remove"
)

// Registry creates, looks up and removes reactive states. At most one state
// exists per key per process.
type Registry struct {
	broadcaster *hub.Broadcaster
	adapter     *bridge.Adapter
	lifecycle   *bridge.Bridge

	mu     sync.Mutex
	states map[string]*State
}

// NewRegistry builds a registry bound to the shared broadcaster. adapter and
// lifecycle may be nil for single-process operation; when a lifecycle bridge
// is given, the registry installs itself as its handler.
func NewRegistry(broadcaster *hub.Broadcaster, adapter *bridge.Adapter, lifecycle *bridge.Bridge) *Registry {
	r := &Registry{
		broadcaster: broadcaster,
		adapter:     adapter,
		lifecycle:   lifecycle,
		states:      make(map[string]*State),
	}
	if lifecycle != nil {
		lifecycle.OnMessage(r.handleLifecycle)
	}
	return r
}

// Create returns the state for the key, constructing it when absent. A
// second Create with the same key returns the existing instance and does not
// publish a second lifecycle event.
func (r *Registry) Create(key string, initial any) *State {
	s, created := r.createLocal(key, initial)
	if created && r.lifecycle != nil {
		r.lifecycle.Publish(lifecycleEvent{Type: lifecycleCreate, Key: key, InitialValue: initial})
	}
	return s
}

// Get returns the state for the key, if present.
func (r *Registry) Get(key string) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[key]
	return s, ok
}

// Remove deletes the state and notifies sibling processes. Removing an
// absent key is a no-op and publishes nothing.
func (r *Registry) Remove(key string) {
	if !r.removeLocal(key) {
		return
	}
	if r.lifecycle != nil {
		r.lifecycle.Publish(lifecycleEvent{Type: lifecycleRemove, Key: key})
	}
}

// Close drops every state's adapter subscription and the lifecycle handler's
// bridge subscription.
func (r *Registry) Close() {
	r.mu.Lock()
	states := make([]*State, 0, len(r.states))
	for key, s := range r.states {
		states = append(states, s)
		delete(r.states, key)
	}
	r.mu.Unlock()

	for _, s := range states {
		s.close()
	}
	if r.lifecycle != nil {
		r.lifecycle.Close()
	}
}

func (r *Registry) createLocal(key string, initial any) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.states[key]; ok {
		return s, false
	}
	s := newState(key, initial, "", r.broadcaster, r.adapter)
	r.states[key] = s
	return s, true
}

func (r *Registry) removeLocal(key string) bool {
	r.mu.Lock()
	s, ok := r.states[key]
	delete(r.states, key)
	r.mu.Unlock()

	if ok {
		s.close()
	}
	return ok
}

// handleLifecycle runs on the bridge's delivery goroutine. Duplicate creates
// and removes for absent keys are no-ops, so at-least-once delivery and
// racing processes converge without error. Remote events are never
// re-published.
func (r *Registry) handleLifecycle(raw json.RawMessage) {
	var ev lifecycleEvent
	if err := json.Unmarshal(raw, &ev); err != nil || ev.Key == "" {
		return
	}

	switch ev.Type {
	case lifecycleCreate:
		if _, created := r.createLocal(ev.Key, ev.InitialValue); created {
			slog.Debug("State materialized from remote create", "key", ev.Key)
		}
	case lifecycleRemove:
		r.removeLocal(ev.Key)
	}
}
