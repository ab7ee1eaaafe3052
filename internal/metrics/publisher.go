package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Dispatch sources distinguish events drained from the pending set from
// events replayed out of failed-message chains.
const (
	SourcePending = "pending"
	SourceChain   = "chain"
)

// Dispatch statuses recorded per event.
const (
	StatusPublished = "published"
	StatusFailed    = "failed"
	StatusStale     = "stale"
)

// PublisherMetrics defines the interface for recording publisher dispatch
// metrics: per-event outcomes and delivery durations.
type PublisherMetrics interface {
	// RecordPoll counts one polling cycle, regardless of how much work it found.
	RecordPoll(ctx context.Context)

	// RecordDispatch records one dispatched event with its source
	// ("pending", "chain") and outcome ("published", "failed", "stale").
	RecordDispatch(ctx context.Context, source, status string)

	// RecordDispatchDuration records how long delivering one event took,
	// in seconds, as a histogram for percentile calculations.
	RecordDispatchDuration(ctx context.Context, source string, duration time.Duration, status string)
}

// publisherMetrics implements PublisherMetrics using OpenTelemetry metrics.
type publisherMetrics struct {
	pollCounter     metric.Int64Counter
	dispatchCounter metric.Int64Counter
	durationHisto   metric.Float64Histogram
}

// NewPublisherMetrics creates a PublisherMetrics implementation using the
// provided meter provider. The namespace parameter is used as a prefix for
// all metric names (e.g., "eventlog").
func NewPublisherMetrics(meterProvider metric.MeterProvider, namespace string) (PublisherMetrics, error) {
	meter := meterProvider.Meter(namespace)

	pollCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_poll_cycles_total", namespace),
		metric.WithDescription("Total number of publisher polling cycles"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create poll counter: %w", err)
	}

	dispatchCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_dispatched_events_total", namespace),
		metric.WithDescription("Total number of events handled by the publisher"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatch counter: %w", err)
	}

	durationHisto, err := meter.Float64Histogram(
		fmt.Sprintf("%s_dispatch_duration_seconds", namespace),
		metric.WithDescription("Duration of event delivery attempts in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return &publisherMetrics{
		pollCounter:     pollCounter,
		dispatchCounter: dispatchCounter,
		durationHisto:   durationHisto,
	}, nil
}

// RecordPoll increments the polling cycle counter.
func (p *publisherMetrics) RecordPoll(ctx context.Context) {
	p.pollCounter.Add(ctx, 1)
}

// RecordDispatch increments the dispatch counter with source and status labels.
func (p *publisherMetrics) RecordDispatch(ctx context.Context, source, status string) {
	p.dispatchCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("status", status),
		),
	)
}

// RecordDispatchDuration records the delivery duration with source and status labels.
func (p *publisherMetrics) RecordDispatchDuration(
	ctx context.Context,
	source string,
	duration time.Duration,
	status string,
) {
	p.durationHisto.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("status", status),
		),
	)
}

// NoOpPublisherMetrics is a no-op implementation for when metrics are disabled.
type NoOpPublisherMetrics struct{}

// NewNoOpPublisherMetrics creates a no-op PublisherMetrics implementation.
func NewNoOpPublisherMetrics() PublisherMetrics {
	return &NoOpPublisherMetrics{}
}

// RecordPoll does nothing when metrics are disabled.
func (n *NoOpPublisherMetrics) RecordPoll(ctx context.Context) {
	// No-op
}

// RecordDispatch does nothing when metrics are disabled.
func (n *NoOpPublisherMetrics) RecordDispatch(ctx context.Context, source, status string) {
	// No-op
}

// RecordDispatchDuration does nothing when metrics are disabled.
func (n *NoOpPublisherMetrics) RecordDispatchDuration(
	ctx context.Context,
	source string,
	duration time.Duration,
	status string,
) {
	// No-op
}
