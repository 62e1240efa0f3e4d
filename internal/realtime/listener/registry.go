package listener

import (
	"sync"

	"github.com/google/uuid"

	"menuqr/internal/realtime/events"
)

// Handler receives a decoded event envelope.
type Handler func(e events.Envelope)

// Registry maps event names to callback registrations. Subscribe returns a
// handle whose Close runs exactly once; closing one subscription never
// affects other subscribers on the same event.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]map[string]Handler
}

// Subscription is the scoped disposer for one registration.
type Subscription struct {
	ID    string
	Event string

	once   sync.Once
	cancel func()
}

// Close removes the registration. Safe to call multiple times.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]map[string]Handler)}
}

func (r *Registry) Subscribe(event string, fn Handler) *Subscription {
	id := uuid.NewString()

	r.mu.Lock()
	if r.subs[event] == nil {
		r.subs[event] = make(map[string]Handler)
	}
	r.subs[event][id] = fn
	r.mu.Unlock()

	return &Subscription{
		ID:    id,
		Event: event,
		cancel: func() {
			r.mu.Lock()
			delete(r.subs[event], id)
			r.mu.Unlock()
		},
	}
}

// Dispatch invokes every handler registered for the envelope's event name.
func (r *Registry) Dispatch(e events.Envelope) {
	r.mu.RLock()
	handlers := make([]Handler, 0, len(r.subs[e.Event]))
	for _, fn := range r.subs[e.Event] {
		handlers = append(handlers, fn)
	}
	r.mu.RUnlock()

	for _, fn := range handlers {
		fn(e)
	}
}

// Clear drops every registration. Used on session teardown.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.subs = make(map[string]map[string]Handler)
	r.mu.Unlock()
}

// Count returns the number of registrations for an event.
func (r *Registry) Count(event string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[event])
}
