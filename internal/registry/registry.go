// Package registry holds in-process job handlers: a name-keyed map guarded by a
// single mutex. Register replaces an existing handler instead of rejecting it,
// since the facade's Schedule operation re-registers a handler whenever a caller
// re-schedules an identifier.
package registry

import (
	"sync"
)

// Handler is the callable a job invokes when it fires.
type Handler func() error

// Registry maps job identifiers to their in-process handler. Handlers are never
// persisted — restarting the process requires the caller to re-register them.
type Registry struct {
	mu       sync.Mutex
	handlers map[string]Handler
}

func New() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register stores fn under identifier, replacing any prior handler for it.
func (r *Registry) Register(identifier string, fn Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[identifier] = fn
}

// Unregister removes any handler stored under identifier.
func (r *Registry) Unregister(identifier string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, identifier)
}

// Get returns the handler for identifier, if any.
func (r *Registry) Get(identifier string) (Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn, ok := r.handlers[identifier]
	return fn, ok
}

// Len reports how many handlers are currently registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}
