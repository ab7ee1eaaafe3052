// Package usecase implements the integration event log business logic: the
// atomic entity-mutation-plus-event write, batch assembly for delivery, and
// the publisher loop.
package usecase

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shakamirtskhulava/eventlog/internal/database"
	"github.com/shakamirtskhulava/eventlog/internal/eventlog/domain"

	apperrors "github.com/shakamirtskhulava/eventlog/internal/errors"
)

// EventLogRepository defines event log and failed-message chain persistence
// operations. The compare-and-transition semantics of the Mark* methods are a
// documented contract: the store must only apply a transition when the entry
// is in the required source state and must report ErrStaleStateTransition
// otherwise.
type EventLogRepository interface {
	SaveEvent(ctx context.Context, entry *domain.EventLogEntry) error
	RetrievePendingEventLogs(ctx context.Context, batchSize int) ([]*domain.EventLogEntry, error)
	MarkEventAsInProgress(ctx context.Context, eventID uuid.UUID) error
	MarkEventAsPublished(ctx context.Context, eventID uuid.UUID) error
	MarkEventAsFailed(ctx context.Context, eventID uuid.UUID) error
	FailedMessageChainExists(ctx context.Context, entityID string) (bool, error)
	AddInFailedMessageChain(ctx context.Context, entityID string, message *domain.FailedMessage) error
	GetChainsToRepublish(ctx context.Context, chainBatchSize int) ([]*domain.FailedMessageChain, error)
	ListChains(ctx context.Context, limit int) ([]*domain.FailedMessageChain, error)
	SetChainRepublish(ctx context.Context, entityID string, shouldRepublish bool) error
	SetMessageSkip(ctx context.Context, messageID uuid.UUID, shouldSkip bool) error
}

// EntityStore is the external storage collaborator persisting domain entities.
// Implementations must issue their writes through database.GetTx so the
// mutation shares the event service's transaction.
type EntityStore interface {
	Add(ctx context.Context, entity domain.Entity) error
	Update(ctx context.Context, entity domain.Entity) error
	Remove(ctx context.Context, entity domain.Entity) error
}

// OutboundEvent is one unit of publisher work: a decoded event plus the log
// metadata dispatch needs. FailedMessageID is set when the event was sourced
// from a failed-message chain instead of the pending set.
type OutboundEvent struct {
	Event              domain.IntegrationEvent
	EventID            uuid.UUID
	EventTypeShortName string
	EntityID           string
	Body               string
	FailedMessageID    *uuid.UUID
}

// FromChain reports whether the event was sourced from a failed-message chain.
func (e *OutboundEvent) FromChain() bool { return e.FailedMessageID != nil }

// EventService defines the interface for event log use cases.
type EventService interface {
	GetPendingEvents(ctx context.Context, batchSize int) ([]*OutboundEvent, error)
	RetrieveFailedEventsToRepublish(ctx context.Context, chainBatchSize int) ([]*OutboundEvent, error)
	Add(ctx context.Context, entity domain.Entity, event domain.IntegrationEvent) error
	Update(ctx context.Context, entity domain.Entity, event domain.IntegrationEvent) error
	Remove(ctx context.Context, entity domain.Entity, event domain.IntegrationEvent) error
}

// IntegrationEventService implements EventService on top of the event log
// repository, an application-supplied entity store, and a type registry.
type IntegrationEventService struct {
	txManager   database.TxManager
	retryConfig database.RetryConfig
	repo        EventLogRepository
	entityStore EntityStore
	registry    *domain.TypeRegistry
	logger      *slog.Logger
}

// NewIntegrationEventService creates a new IntegrationEventService.
func NewIntegrationEventService(
	txManager database.TxManager,
	retryConfig database.RetryConfig,
	repo EventLogRepository,
	entityStore EntityStore,
	registry *domain.TypeRegistry,
	logger *slog.Logger,
) *IntegrationEventService {
	return &IntegrationEventService{
		txManager:   txManager,
		retryConfig: retryConfig,
		repo:        repo,
		entityStore: entityStore,
		registry:    registry,
		logger:      logger,
	}
}

// GetPendingEvents fetches up to batchSize pending log entries and decodes
// them through the type registry. A decode failure is reported per entry and
// never aborts the batch.
func (s *IntegrationEventService) GetPendingEvents(ctx context.Context, batchSize int) ([]*OutboundEvent, error) {
	entries, err := s.repo.RetrievePendingEventLogs(ctx, batchSize)
	if err != nil {
		return nil, err
	}

	events := make([]*OutboundEvent, 0, len(entries))
	for _, entry := range entries {
		event, err := s.registry.Decode(entry)
		if err != nil {
			s.reportDecodeFailure(entry.EventTypeName, entry.EventID, err)
			continue
		}

		events = append(events, &OutboundEvent{
			Event:              event,
			EventID:            entry.EventID,
			EventTypeShortName: entry.EventTypeShortName,
			EntityID:           entry.EntityID,
			Body:               entry.Content,
		})
	}

	return events, nil
}

// RetrieveFailedEventsToRepublish flattens the retryable messages of up to
// chainBatchSize republishable chains into events. Within a chain the oldest
// failure comes first; order across chains is unspecified.
func (s *IntegrationEventService) RetrieveFailedEventsToRepublish(
	ctx context.Context,
	chainBatchSize int,
) ([]*OutboundEvent, error) {
	chains, err := s.repo.GetChainsToRepublish(ctx, chainBatchSize)
	if err != nil {
		return nil, err
	}

	var events []*OutboundEvent
	for _, chain := range chains {
		for _, message := range chain.RetryableMessages() {
			event, err := s.registry.DecodeBody(message.EventTypeShortName, message.Body)
			if err != nil {
				s.reportDecodeFailure(message.EventTypeShortName, message.EventID.UUID, err)
				continue
			}

			messageID := message.ID
			events = append(events, &OutboundEvent{
				Event:              event,
				EventID:            message.EventID.UUID,
				EventTypeShortName: message.EventTypeShortName,
				EntityID:           chain.EntityID,
				Body:               message.Body,
				FailedMessageID:    &messageID,
			})
		}
	}

	return events, nil
}

// Add persists a new entity and records its integration event atomically.
// Transient infrastructure faults are retried under the bounded policy; on
// any failure both the entity change and the event record roll back.
func (s *IntegrationEventService) Add(ctx context.Context, entity domain.Entity, event domain.IntegrationEvent) error {
	return s.mutate(ctx, entity, event, EntityStore.Add)
}

// Update persists an entity change and records its integration event atomically.
func (s *IntegrationEventService) Update(ctx context.Context, entity domain.Entity, event domain.IntegrationEvent) error {
	return s.mutate(ctx, entity, event, EntityStore.Update)
}

// Remove deletes an entity and records its integration event atomically.
func (s *IntegrationEventService) Remove(ctx context.Context, entity domain.Entity, event domain.IntegrationEvent) error {
	return s.mutate(ctx, entity, event, EntityStore.Remove)
}

// mutate runs the entity mutation and the event log write inside one unit of
// work. This pairing is the whole point of the outbox pattern.
func (s *IntegrationEventService) mutate(
	ctx context.Context,
	entity domain.Entity,
	event domain.IntegrationEvent,
	op func(store EntityStore, ctx context.Context, entity domain.Entity) error,
) error {
	if s.entityStore == nil {
		return apperrors.New("entity store is not configured")
	}
	if entity == nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "entity is required")
	}
	if event == nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "event is required")
	}

	entry, err := domain.NewEventLogEntry(event, s.registry.Qualifier(), entity.EntityID())
	if err != nil {
		return err
	}

	return database.WithRetry(ctx, s.retryConfig, s.logger, func(ctx context.Context) error {
		return s.txManager.WithTx(ctx, func(ctx context.Context) error {
			if err := op(s.entityStore, ctx, entity); err != nil {
				return err
			}
			return s.repo.SaveEvent(ctx, entry)
		})
	})
}

// reportDecodeFailure records a per-entry deserialization failure without
// touching the entry's state; the entry stays visible for later inspection.
func (s *IntegrationEventService) reportDecodeFailure(typeName string, eventID uuid.UUID, err error) {
	if s.logger != nil {
		s.logger.Error("failed to decode event",
			slog.String("event_type", typeName),
			slog.String("event_id", eventID.String()),
			slog.Any("error", err),
		)
	}
}
