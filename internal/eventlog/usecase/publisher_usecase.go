package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	"github.com/shakamirtskhulava/eventlog/internal/database"
	"github.com/shakamirtskhulava/eventlog/internal/eventlog/domain"
	"github.com/shakamirtskhulava/eventlog/internal/metrics"

	apperrors "github.com/shakamirtskhulava/eventlog/internal/errors"
)

// EventBus defines the broker the publisher delivers events to.
type EventBus interface {
	// IsReady reports whether the broker currently accepts publishes.
	IsReady(ctx context.Context) bool
	// Publish delivers one event. A nil return means the broker accepted it.
	Publish(ctx context.Context, event domain.IntegrationEvent) error
}

// PublisherConfig holds publisher loop configuration.
type PublisherConfig struct {
	PollDelay          time.Duration
	EventsBatchSize    int
	ChainBatchSize     int
	BrokerWaitTimeout  time.Duration
	BrokerWaitInterval time.Duration
}

// Validate checks the configuration fields are usable.
func (c PublisherConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.PollDelay, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.EventsBatchSize, validation.Required, validation.Min(1)),
		validation.Field(&c.ChainBatchSize, validation.Required, validation.Min(1)),
		validation.Field(&c.BrokerWaitTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.BrokerWaitInterval, validation.Required, validation.Min(time.Millisecond)),
	)
}

// Publisher implements the background delivery loop: wait for the broker,
// then poll the event log and failed-message chains and dispatch each event
// with per-event fault isolation.
type Publisher struct {
	config       PublisherConfig
	eventService EventService
	repo         EventLogRepository
	txManager    database.TxManager
	bus          EventBus
	metrics      metrics.PublisherMetrics
	logger       *slog.Logger
}

// NewPublisher creates a new Publisher.
func NewPublisher(
	config PublisherConfig,
	eventService EventService,
	repo EventLogRepository,
	txManager database.TxManager,
	bus EventBus,
	publisherMetrics metrics.PublisherMetrics,
	logger *slog.Logger,
) *Publisher {
	if publisherMetrics == nil {
		publisherMetrics = metrics.NewNoOpPublisherMetrics()
	}
	return &Publisher{
		config:       config,
		eventService: eventService,
		repo:         repo,
		txManager:    txManager,
		bus:          bus,
		metrics:      publisherMetrics,
		logger:       logger,
	}
}

// Start runs the publisher loop until ctx is cancelled. It returns
// ErrFatalStartup when the broker never becomes ready within the configured
// wait timeout, and ctx.Err() on cancellation.
func (p *Publisher) Start(ctx context.Context) error {
	if err := p.config.Validate(); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
	}

	if err := p.waitForBroker(ctx); err != nil {
		return err
	}

	if p.logger != nil {
		p.logger.Info("starting event publisher",
			slog.Duration("poll_delay", p.config.PollDelay),
			slog.Int("events_batch_size", p.config.EventsBatchSize),
			slog.Int("chain_batch_size", p.config.ChainBatchSize),
		)
	}

	for {
		dispatched, err := p.ProcessBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				if p.logger != nil {
					p.logger.Info("stopping event publisher")
				}
				return ctx.Err()
			}
			if p.logger != nil {
				p.logger.Error("failed to process batch", slog.Any("error", err))
			}
		}

		// A full cycle polls again immediately; only an empty one idles.
		if dispatched > 0 {
			select {
			case <-ctx.Done():
				if p.logger != nil {
					p.logger.Info("stopping event publisher")
				}
				return ctx.Err()
			default:
			}
			continue
		}

		// The idle delay is measured from the end of the empty poll.
		idle := time.NewTimer(p.config.PollDelay)
		select {
		case <-ctx.Done():
			idle.Stop()
			if p.logger != nil {
				p.logger.Info("stopping event publisher")
			}
			return ctx.Err()
		case <-idle.C:
		}
	}
}

// waitForBroker blocks until the broker reports ready, polling at the
// configured interval. The wait is bounded: a broker that never becomes
// ready within BrokerWaitTimeout is a fatal startup condition.
func (p *Publisher) waitForBroker(ctx context.Context) error {
	if p.bus.IsReady(ctx) {
		return nil
	}

	if p.logger != nil {
		p.logger.Info("waiting for broker",
			slog.Duration("timeout", p.config.BrokerWaitTimeout),
		)
	}

	deadline := time.NewTimer(p.config.BrokerWaitTimeout)
	defer deadline.Stop()

	ticker := time.NewTicker(p.config.BrokerWaitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w: broker not ready after %s",
				apperrors.ErrFatalStartup, p.config.BrokerWaitTimeout)
		case <-ticker.C:
			if p.bus.IsReady(ctx) {
				return nil
			}
		}
	}
}

// ProcessBatch fetches one cycle of work, pending events first and then
// republishable chain messages, dispatches each event, and returns how many
// it dispatched. A fetch failure aborts the cycle; a dispatch failure only
// affects its own event.
func (p *Publisher) ProcessBatch(ctx context.Context) (int, error) {
	p.metrics.RecordPoll(ctx)

	pending, err := p.eventService.GetPendingEvents(ctx, p.config.EventsBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending events: %w", err)
	}

	failed, err := p.eventService.RetrieveFailedEventsToRepublish(ctx, p.config.ChainBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to get republishable events: %w", err)
	}

	work := append(pending, failed...)
	if len(work) == 0 {
		return 0, nil
	}

	if p.logger != nil {
		p.logger.Info("dispatching events",
			slog.Int("pending", len(pending)),
			slog.Int("republish", len(failed)),
		)
	}

	for _, event := range work {
		p.dispatch(ctx, event)
	}

	return len(work), nil
}

// dispatch delivers one event. Pending events are claimed with a
// compare-and-transition first so concurrent publishers never double-deliver;
// chain events skip the claim because their log entries already reached
// published_failed and the chain gates govern their replay.
func (p *Publisher) dispatch(ctx context.Context, event *OutboundEvent) {
	if event.FromChain() {
		p.dispatchFromChain(ctx, event)
		return
	}

	if err := p.repo.MarkEventAsInProgress(ctx, event.EventID); err != nil {
		if apperrors.Is(err, apperrors.ErrStaleStateTransition) {
			// Another publisher instance claimed this event first.
			p.metrics.RecordDispatch(ctx, metrics.SourcePending, metrics.StatusStale)
			if p.logger != nil {
				p.logger.Debug("event already claimed",
					slog.String("event_id", event.EventID.String()),
				)
			}
			return
		}
		if p.logger != nil {
			p.logger.Error("failed to claim event",
				slog.String("event_id", event.EventID.String()),
				slog.Any("error", err),
			)
		}
		return
	}

	start := time.Now()
	if err := p.bus.Publish(ctx, event.Event); err != nil {
		p.metrics.RecordDispatch(ctx, metrics.SourcePending, metrics.StatusFailed)
		p.metrics.RecordDispatchDuration(ctx, metrics.SourcePending, time.Since(start), metrics.StatusFailed)
		p.recordDeliveryFailure(ctx, event, err)
		return
	}

	if err := p.repo.MarkEventAsPublished(ctx, event.EventID); err != nil {
		if p.logger != nil {
			p.logger.Error("failed to mark event as published",
				slog.String("event_id", event.EventID.String()),
				slog.Any("error", err),
			)
		}
		return
	}

	p.metrics.RecordDispatch(ctx, metrics.SourcePending, metrics.StatusPublished)
	p.metrics.RecordDispatchDuration(ctx, metrics.SourcePending, time.Since(start), metrics.StatusPublished)
}

// dispatchFromChain replays a failed message. Success marks the message as
// skipped so the chain never replays it again; the log entry itself stays in
// published_failed as the historical record. On failure the message is left
// untouched for the next cycle.
func (p *Publisher) dispatchFromChain(ctx context.Context, event *OutboundEvent) {
	start := time.Now()
	if err := p.bus.Publish(ctx, event.Event); err != nil {
		p.metrics.RecordDispatch(ctx, metrics.SourceChain, metrics.StatusFailed)
		p.metrics.RecordDispatchDuration(ctx, metrics.SourceChain, time.Since(start), metrics.StatusFailed)
		if p.logger != nil {
			p.logger.Warn("failed to republish event",
				slog.String("entity_id", event.EntityID),
				slog.String("event_type", event.EventTypeShortName),
				slog.Any("error", err),
			)
		}
		return
	}

	if err := p.repo.SetMessageSkip(ctx, *event.FailedMessageID, true); err != nil {
		if p.logger != nil {
			p.logger.Error("failed to mark message as skipped",
				slog.String("message_id", event.FailedMessageID.String()),
				slog.Any("error", err),
			)
		}
		return
	}

	p.metrics.RecordDispatch(ctx, metrics.SourceChain, metrics.StatusPublished)
	p.metrics.RecordDispatchDuration(ctx, metrics.SourceChain, time.Since(start), metrics.StatusPublished)
}

// recordDeliveryFailure transitions the entry to published_failed and appends
// the failure to the entity's chain in one transaction, so the chain never
// misses a failure the log already recorded.
func (p *Publisher) recordDeliveryFailure(ctx context.Context, event *OutboundEvent, cause error) {
	message := domain.NewFailedMessage(
		event.EventTypeShortName,
		event.Body,
		cause.Error(),
		string(debug.Stack()),
		uuid.NullUUID{UUID: event.EventID, Valid: true},
	)

	err := p.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := p.repo.MarkEventAsFailed(ctx, event.EventID); err != nil {
			return err
		}
		return p.repo.AddInFailedMessageChain(ctx, event.EntityID, message)
	})
	if err != nil {
		if p.logger != nil {
			p.logger.Error("failed to record delivery failure",
				slog.String("event_id", event.EventID.String()),
				slog.String("entity_id", event.EntityID),
				slog.Any("error", err),
			)
		}
		return
	}

	if p.logger != nil {
		p.logger.Warn("event delivery failed",
			slog.String("event_id", event.EventID.String()),
			slog.String("entity_id", event.EntityID),
			slog.Any("error", cause),
		)
	}
}
