// Package invalidation distributes corpus mutation signals to caches.
//
// Collaborators that mutate a collection publish a typed
// (collection, scope fingerprint) event; the statistics and scope caches
// subscribe and evict the matching entries. Keeping the channel explicit
// and typed centralizes caching policy instead of scattering ad hoc cache
// clears through mutation paths.
package invalidation

import (
	"sync"
)

// Event identifies what changed.
type Event struct {
	// Collection is the mutated collection name.
	Collection string `json:"collection"`

	// ScopeFingerprint identifies the affected scope. Empty means all
	// scopes of the collection.
	ScopeFingerprint string `json:"scope_fingerprint"`
}

// Handler receives events. Handlers must be fast and must not block.
type Handler func(Event)

// Bus is an in-process fan-out of invalidation events.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all future events.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers an event to all subscribers synchronously.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}
