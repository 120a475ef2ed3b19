package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/shopfront/backend/internal/domain/shared"
)

// ErrUnknownEventType is returned for event types that are not registered
var ErrUnknownEventType = errors.New("unknown event type")

// EventSerializer turns shop events into outbox payloads and back. Only
// registered types are encoded, so every stored entry can be decoded again.
type EventSerializer struct {
	mu       sync.RWMutex
	payloads map[string]reflect.Type
}

// NewEventSerializer creates a serializer with nothing registered
func NewEventSerializer() *EventSerializer {
	return &EventSerializer{payloads: make(map[string]reflect.Type)}
}

// Register binds a shop event type to the struct its payload decodes into.
// prototype must be a pointer, as handlers assert on pointer types. Binding
// a type twice to the same struct is a no-op.
func (s *EventSerializer) Register(eventType string, prototype shared.DomainEvent) error {
	if !IsShopEvent(eventType) {
		return fmt.Errorf("register %s: %w", eventType, ErrUnknownEventType)
	}
	t := reflect.TypeOf(prototype)
	if t == nil || t.Kind() != reflect.Ptr {
		return fmt.Errorf("register %s: payload must be a pointer, got %T", eventType, prototype)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if bound, ok := s.payloads[eventType]; ok && bound != t.Elem() {
		return fmt.Errorf("register %s: already bound to %s", eventType, bound)
	}
	s.payloads[eventType] = t.Elem()
	return nil
}

// Serialize encodes a registered event as JSON
func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	if !s.IsRegistered(event.EventType()) {
		return nil, fmt.Errorf("serialize %s: %w", event.EventType(), ErrUnknownEventType)
	}
	return json.Marshal(event)
}

// Deserialize decodes a payload into the struct registered for eventType.
// A payload that names a different event type is rejected.
func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	s.mu.RLock()
	t, ok := s.payloads[eventType]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}

	ptr := reflect.New(t).Interface()
	if err := json.Unmarshal(data, ptr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", eventType, err)
	}
	event, ok := ptr.(shared.DomainEvent)
	if !ok {
		return nil, fmt.Errorf("%s payload %s is not a domain event", eventType, t)
	}
	if got := event.EventType(); got != "" && got != eventType {
		return nil, fmt.Errorf("payload of %s carries event type %s", eventType, got)
	}
	return event, nil
}

// IsRegistered reports whether eventType can be encoded and decoded
func (s *EventSerializer) IsRegistered(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.payloads[eventType]
	return ok
}

// RegisteredTypes returns the registered event types in name order
func (s *EventSerializer) RegisteredTypes() []string {
	s.mu.RLock()
	types := make([]string, 0, len(s.payloads))
	for eventType := range s.payloads {
		types = append(types, eventType)
	}
	s.mu.RUnlock()
	sort.Strings(types)
	return types
}
