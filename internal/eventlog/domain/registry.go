package domain

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/shakamirtskhulava/eventlog/internal/errors"
)

// EventFactory constructs an empty concrete event ready for deserialization.
type EventFactory func() IntegrationEvent

// TypeRegistry maps qualified event type names to factories. Events cross a
// serialization boundary, so the application must supply the mapping at
// startup; there is no reflection-based type loading.
type TypeRegistry struct {
	qualifier string
	factories map[string]EventFactory
	byShort   map[string]EventFactory
}

// NewTypeRegistry creates a registry namespaced by qualifier.
func NewTypeRegistry(qualifier string) *TypeRegistry {
	return &TypeRegistry{
		qualifier: qualifier,
		factories: make(map[string]EventFactory),
		byShort:   make(map[string]EventFactory),
	}
}

// Qualifier returns the registry's namespace prefix.
func (r *TypeRegistry) Qualifier() string { return r.qualifier }

// Register binds an event type name to its factory. The name is the event's
// EventTypeName; the registry stores it under both its qualified and short
// forms so failed messages, which only carry the short name, stay decodable.
func (r *TypeRegistry) Register(name string, factory EventFactory) {
	qualified := QualifiedTypeName(r.qualifier, name)
	r.factories[qualified] = factory
	r.byShort[ShortTypeName(qualified)] = factory
}

// Resolve returns the factory for a qualified or short type name.
func (r *TypeRegistry) Resolve(name string) (EventFactory, error) {
	if factory, ok := r.factories[name]; ok {
		return factory, nil
	}
	if factory, ok := r.byShort[name]; ok {
		return factory, nil
	}
	return nil, fmt.Errorf("%w: %s", apperrors.ErrTypeNotRegistered, name)
}

// Decode reconstructs the concrete event from an entry's serialized content.
func (r *TypeRegistry) Decode(entry *EventLogEntry) (IntegrationEvent, error) {
	return r.DecodeBody(entry.EventTypeName, entry.Content)
}

// DecodeBody reconstructs a concrete event from a type name (qualified or
// short) and a serialized body. Used for both log entries and failed-message
// bodies.
func (r *TypeRegistry) DecodeBody(name, body string) (IntegrationEvent, error) {
	factory, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}

	event := factory()
	if err := json.Unmarshal([]byte(body), event); err != nil {
		return nil, apperrors.Wrap(err, fmt.Sprintf("failed to deserialize event %s", name))
	}
	return event, nil
}
