// Package domain defines the core integration event log entities and types.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// IntegrationEvent is an immutable fact produced by domain logic. Concrete
// events are application structs that serialize to JSON and cross the process
// boundary through the message bus.
type IntegrationEvent interface {
	// EventID returns the unique identity of the event.
	EventID() uuid.UUID
	// EventTypeName returns the logical type name used for registry resolution.
	EventTypeName() string
	// OccurredOn returns when the fact happened.
	OccurredOn() time.Time
}

// Entity is the identity contract for domain entities participating in the
// outbox. Anything with a comparable identity qualifies; the id is used only
// to correlate mutations with their events and to group delivery failures.
type Entity interface {
	EntityID() string
}

// BaseEvent carries the identity and timestamp every integration event needs.
// Concrete events embed it and implement EventTypeName.
type BaseEvent struct {
	ID         uuid.UUID `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewBaseEvent creates a BaseEvent with a fresh UUIDv7 id and the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{
		ID:         uuid.Must(uuid.NewV7()),
		OccurredAt: time.Now().UTC(),
	}
}

// EventID returns the unique identity of the event.
func (e BaseEvent) EventID() uuid.UUID { return e.ID }

// OccurredOn returns when the fact happened.
func (e BaseEvent) OccurredOn() time.Time { return e.OccurredAt }
