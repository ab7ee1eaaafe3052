package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/shakamirtskhulava/eventlog/internal/errors"
)

// EventState represents the delivery state of an event log entry.
type EventState string

const (
	EventStateNotPublished    EventState = "not_published"
	EventStateInProgress      EventState = "in_progress"
	EventStatePublished       EventState = "published"
	EventStatePublishedFailed EventState = "published_failed"
)

// eventStateTransitions is the only legal transition table. The persistence
// layer enforces it with compare-and-transition updates; this map is the
// in-memory source of truth for fakes and validation.
var eventStateTransitions = map[EventState]EventState{
	EventStateInProgress:      EventStateNotPublished,
	EventStatePublished:       EventStateInProgress,
	EventStatePublishedFailed: EventStateInProgress,
}

// RequiredSourceState returns the state an entry must currently be in for a
// transition into next to be legal.
func RequiredSourceState(next EventState) (EventState, bool) {
	src, ok := eventStateTransitions[next]
	return src, ok
}

// CanTransitionTo reports whether moving from s to next is a legal transition.
func (s EventState) CanTransitionTo(next EventState) bool {
	src, ok := eventStateTransitions[next]
	return ok && src == s
}

// EventLogEntry is the outbox record: one entry per integration event, created
// in the same transaction as the triggering entity mutation, mutated only
// through state transitions, never deleted by this core.
type EventLogEntry struct {
	EventID            uuid.UUID
	EventTypeName      string
	EventTypeShortName string
	EntityID           string
	Content            string
	State              EventState
	TimesSent          int
	CreationTime       time.Time
}

// NewEventLogEntry serializes the event and builds a not-yet-published entry.
// The qualifier namespaces the stored type name so registries from different
// applications do not collide; entityID correlates the entry with the mutated
// entity for failure grouping.
func NewEventLogEntry(event IntegrationEvent, qualifier, entityID string) (*EventLogEntry, error) {
	content, err := json.Marshal(event)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to serialize event")
	}

	typeName := QualifiedTypeName(qualifier, event.EventTypeName())

	return &EventLogEntry{
		EventID:            event.EventID(),
		EventTypeName:      typeName,
		EventTypeShortName: ShortTypeName(typeName),
		EntityID:           entityID,
		Content:            string(content),
		State:              EventStateNotPublished,
		TimesSent:          0,
		CreationTime:       time.Now().UTC(),
	}, nil
}

// QualifiedTypeName prefixes name with the registry qualifier when present.
func QualifiedTypeName(qualifier, name string) string {
	if qualifier == "" {
		return name
	}
	return qualifier + "." + name
}

// ShortTypeName returns the last segment of a qualified type name, used for
// display and failure grouping.
func ShortTypeName(qualified string) string {
	if idx := strings.LastIndex(qualified, "."); idx >= 0 {
		return qualified[idx+1:]
	}
	return qualified
}
