package dto

import (
	"github.com/shakamirtskhulava/eventlog/internal/eventlog/domain"
)

// ToFailedMessageResponse converts a domain FailedMessage to its response DTO.
func ToFailedMessageResponse(message *domain.FailedMessage) FailedMessageResponse {
	resp := FailedMessageResponse{
		ID:         message.ID,
		CreatedAt:  message.CreationTime,
		EventType:  message.EventTypeShortName,
		Message:    message.Message,
		ShouldSkip: message.ShouldSkip,
		Body:       message.Body,
	}
	if message.EventID.Valid {
		eventID := message.EventID.UUID
		resp.EventID = &eventID
	}
	return resp
}

// ToChainResponse converts a domain FailedMessageChain to its response DTO.
func ToChainResponse(chain *domain.FailedMessageChain) ChainResponse {
	messages := make([]FailedMessageResponse, 0, len(chain.FailedMessages))
	for _, message := range chain.FailedMessages {
		messages = append(messages, ToFailedMessageResponse(message))
	}

	return ChainResponse{
		ID:              chain.ID,
		EntityID:        chain.EntityID,
		CreatedAt:       chain.CreationTime,
		ShouldRepublish: chain.ShouldRepublish,
		FailedMessages:  messages,
	}
}

// ToChainListResponse converts a list of chains to the list response DTO.
func ToChainListResponse(chains []*domain.FailedMessageChain) ChainListResponse {
	resp := ChainListResponse{Chains: make([]ChainResponse, 0, len(chains))}
	for _, chain := range chains {
		resp.Chains = append(resp.Chains, ToChainResponse(chain))
	}
	return resp
}
