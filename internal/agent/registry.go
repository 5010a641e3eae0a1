package agent

import (
	"sync"

	"github.com/medicortex/medicortex/pkg/models"
)

// Registry is the process-wide responder catalogue. Populated at startup,
// read-only afterwards.
type Registry struct {
	mu         sync.RWMutex
	responders map[string]*Responder
	order      []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{responders: make(map[string]*Responder)}
}

// Register adds a responder under its routing key.
func (r *Registry) Register(key string, resp *Responder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.responders[key]; !exists {
		r.order = append(r.order, key)
	}
	r.responders[key] = resp
}

// Get returns the responder for a routing key.
func (r *Registry) Get(key string) (*Responder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	resp, ok := r.responders[key]
	return resp, ok
}

// Keys returns routing keys in registration order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, len(r.order))
	copy(keys, r.order)
	return keys
}

// Cards returns all capability cards in registration order.
func (r *Registry) Cards() []models.AgentCard {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cards := make([]models.AgentCard, 0, len(r.order))
	for _, key := range r.order {
		cards = append(cards, r.responders[key].Card())
	}
	return cards
}

// Card returns the capability card for a single responder.
func (r *Registry) Card(key string) (models.AgentCard, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	resp, ok := r.responders[key]
	if !ok {
		return models.AgentCard{}, false
	}
	return resp.Card(), true
}
