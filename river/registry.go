// Package river carries commands to event-sourced aggregates over the River
// job queue.
package river

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/underthemoss/esengine/command"
)

// ErrHandlerNotFound is returned when no handler serves an aggregate type.
var ErrHandlerNotFound = errors.New("handler not found")

// ErrHandlerExists is returned when an aggregate type is registered twice.
var ErrHandlerExists = errors.New("handler already registered")

// Registry maps aggregate types to the handlers that execute their commands.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]command.Handler
}

// NewRegistry creates a new Registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]command.Handler),
	}
}

// Register adds a handler under its aggregate type.
func (r *Registry) Register(h command.Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	aggType := h.AggregateType()
	if _, exists := r.handlers[aggType]; exists {
		return fmt.Errorf("%w: %s", ErrHandlerExists, aggType)
	}
	r.handlers[aggType] = h
	return nil
}

// Get retrieves the handler for an aggregate type.
// Returns ErrHandlerNotFound if none is registered.
func (r *Registry) Get(aggregateType string) (command.Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[aggregateType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotFound, aggregateType)
	}
	return h, nil
}

// Types returns the registered aggregate types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Count returns the number of registered aggregate types.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.handlers)
}
