package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/shakamirtskhulava/eventlog/internal/eventlog/domain"

	apperrors "github.com/shakamirtskhulava/eventlog/internal/errors"
)

// ChainService defines the operator-facing failed-message chain operations.
type ChainService interface {
	ListChains(ctx context.Context, limit int) ([]*domain.FailedMessageChain, error)
	SetChainRepublish(ctx context.Context, entityID string, shouldRepublish bool) error
	SetMessageSkip(ctx context.Context, messageID uuid.UUID, shouldSkip bool) error
}

// FailedMessageChainService implements ChainService on top of the event log
// repository.
type FailedMessageChainService struct {
	repo   EventLogRepository
	logger *slog.Logger
}

// NewFailedMessageChainService creates a new FailedMessageChainService.
func NewFailedMessageChainService(repo EventLogRepository, logger *slog.Logger) *FailedMessageChainService {
	return &FailedMessageChainService{
		repo:   repo,
		logger: logger,
	}
}

// ListChains returns up to limit failed-message chains with their messages,
// including skipped ones, for operator inspection.
func (s *FailedMessageChainService) ListChains(
	ctx context.Context,
	limit int,
) ([]*domain.FailedMessageChain, error) {
	return s.repo.ListChains(ctx, limit)
}

// SetChainRepublish flips the republish gate for an entity's chain. Opening
// the gate makes the publisher replay the chain's retryable messages on its
// next cycle.
func (s *FailedMessageChainService) SetChainRepublish(
	ctx context.Context,
	entityID string,
	shouldRepublish bool,
) error {
	if strings.TrimSpace(entityID) == "" {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "entity id is required")
	}

	if err := s.repo.SetChainRepublish(ctx, entityID, shouldRepublish); err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.Info("chain republish gate changed",
			slog.String("entity_id", entityID),
			slog.Bool("should_republish", shouldRepublish),
		)
	}
	return nil
}

// SetMessageSkip flips the skip gate for a single failed message.
func (s *FailedMessageChainService) SetMessageSkip(
	ctx context.Context,
	messageID uuid.UUID,
	shouldSkip bool,
) error {
	if messageID == uuid.Nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "message id is required")
	}

	if err := s.repo.SetMessageSkip(ctx, messageID, shouldSkip); err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.Info("message skip gate changed",
			slog.String("message_id", messageID.String()),
			slog.Bool("should_skip", shouldSkip),
		)
	}
	return nil
}
