package event

import (
	"sync"

	"github.com/shopfront/backend/internal/domain/shared"
)

// HandlerRegistry routes event types to the handlers subscribed to them. A
// handler subscribed without types receives every event.
type HandlerRegistry struct {
	mu       sync.RWMutex
	byType   map[string][]shared.EventHandler
	wildcard []shared.EventHandler
}

// NewHandlerRegistry creates an empty registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{byType: make(map[string][]shared.EventHandler)}
}

// Register subscribes handler to eventTypes and returns the ones the shop
// never publishes. Subscribing a handler to the same type twice is a no-op.
func (r *HandlerRegistry) Register(handler shared.EventHandler, eventTypes ...string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(eventTypes) == 0 {
		r.wildcard = appendOnce(r.wildcard, handler)
		return nil
	}

	var unknown []string
	for _, eventType := range eventTypes {
		if !IsShopEvent(eventType) {
			unknown = append(unknown, eventType)
		}
		r.byType[eventType] = appendOnce(r.byType[eventType], handler)
	}
	return unknown
}

// HandlersFor returns the handlers of eventType, type-specific ones first.
// A handler that is also a wildcard subscriber appears once.
func (r *HandlerRegistry) HandlersFor(eventType string) []shared.EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specific := r.byType[eventType]
	result := make([]shared.EventHandler, 0, len(specific)+len(r.wildcard))
	result = append(result, specific...)
	for _, h := range r.wildcard {
		result = appendOnce(result, h)
	}
	return result
}

// Len returns the number of distinct subscribed handlers
func (r *HandlerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[shared.EventHandler]struct{})
	for _, h := range r.wildcard {
		seen[h] = struct{}{}
	}
	for _, handlers := range r.byType {
		for _, h := range handlers {
			seen[h] = struct{}{}
		}
	}
	return len(seen)
}

func appendOnce(handlers []shared.EventHandler, handler shared.EventHandler) []shared.EventHandler {
	for _, h := range handlers {
		if h == handler {
			return handlers
		}
	}
	return append(handlers, handler)
}
