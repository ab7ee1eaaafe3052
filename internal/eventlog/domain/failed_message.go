package domain

import (
	"time"

	"github.com/google/uuid"
)

// FailedMessage records one failed delivery attempt. ShouldSkip excludes the
// message from automatic retry while leaving its siblings eligible; it is also
// how a successfully republished message drops out of the retry set.
type FailedMessage struct {
	ID                 uuid.UUID
	CreationTime       time.Time
	Body               string
	Message            string
	StackTrace         string
	EventTypeShortName string
	EventID            uuid.NullUUID
	ShouldSkip         bool
}

// NewFailedMessage builds a failed message from a delivery failure. The cause
// message and stack are stored as data so the failure survives the process.
func NewFailedMessage(shortName, body, causeMessage, stackTrace string, eventID uuid.NullUUID) *FailedMessage {
	return &FailedMessage{
		ID:                 uuid.Must(uuid.NewV7()),
		CreationTime:       time.Now().UTC(),
		Body:               body,
		Message:            causeMessage,
		StackTrace:         stackTrace,
		EventTypeShortName: shortName,
		EventID:            eventID,
		ShouldSkip:         false,
	}
}

// FailedMessageChain groups delivery failures by the entity whose mutation
// produced them. At most one chain exists per entity id; ShouldRepublish is
// the sole gate consulted when assembling a retry batch and defaults to true.
type FailedMessageChain struct {
	ID              uuid.UUID
	CreationTime    time.Time
	EntityID        string
	ShouldRepublish bool
	FailedMessages  []*FailedMessage
}

// RetryableMessages returns the chain's messages still eligible for retry,
// oldest first.
func (c *FailedMessageChain) RetryableMessages() []*FailedMessage {
	out := make([]*FailedMessage, 0, len(c.FailedMessages))
	for _, m := range c.FailedMessages {
		if !m.ShouldSkip {
			out = append(out, m)
		}
	}
	return out
}
