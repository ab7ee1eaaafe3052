package dto

import (
	"time"

	"github.com/google/uuid"
)

// FailedMessageResponse represents a failed message in API responses.
type FailedMessageResponse struct {
	ID         uuid.UUID  `json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	EventID    *uuid.UUID `json:"event_id,omitempty"`
	EventType  string     `json:"event_type"`
	Message    string     `json:"message"`
	ShouldSkip bool       `json:"should_skip"`
	Body       string     `json:"body"`
}

// ChainResponse represents a failed-message chain in API responses.
type ChainResponse struct {
	ID              uuid.UUID               `json:"id"`
	EntityID        string                  `json:"entity_id"`
	CreatedAt       time.Time               `json:"created_at"`
	ShouldRepublish bool                    `json:"should_republish"`
	FailedMessages  []FailedMessageResponse `json:"failed_messages"`
}

// ChainListResponse wraps a list of chains.
type ChainListResponse struct {
	Chains []ChainResponse `json:"chains"`
}

// UpdateChainResponse confirms a chain gate change.
type UpdateChainResponse struct {
	EntityID        string `json:"entity_id"`
	ShouldRepublish bool   `json:"should_republish"`
}

// UpdateMessageResponse confirms a message gate change.
type UpdateMessageResponse struct {
	ID         uuid.UUID `json:"id"`
	ShouldSkip bool      `json:"should_skip"`
}
