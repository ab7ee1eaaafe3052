// Package bus provides the Kafka event bus the publisher delivers
// integration events to.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/shakamirtskhulava/eventlog/internal/eventlog/domain"
)

// Config holds Kafka event bus configuration.
type Config struct {
	Brokers      []string
	Topic        string
	ClientID     string
	WriteTimeout time.Duration
}

// KafkaEventBus publishes integration events to a Kafka topic. Messages are
// keyed by event id and carry the event type name in a header so consumers
// can route without decoding the payload.
type KafkaEventBus struct {
	mu        sync.Mutex
	w         *kafka.Writer
	cfg       Config
	lastReset time.Time
}

// NewKafkaEventBus creates a new KafkaEventBus.
func NewKafkaEventBus(cfg Config) *KafkaEventBus {
	b := &KafkaEventBus{cfg: cfg}
	b.w = newWriter(cfg)
	return b
}

func newWriter(cfg Config) *kafka.Writer {
	// kafka-go caches broker metadata; a long metadata TTL can keep the
	// client stuck on stale broker addresses until restart. Keep it low so
	// the writer self-heals.
	tr := &kafka.Transport{
		ClientID:    cfg.ClientID,
		MetadataTTL: 10 * time.Second,
	}

	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 50 * time.Millisecond,
		Transport:    tr,
	}
}

// IsReady reports whether at least one configured broker accepts connections.
func (b *KafkaEventBus) IsReady(ctx context.Context) bool {
	for _, broker := range b.cfg.Brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			continue
		}
		_ = conn.Close()
		return true
	}
	return false
}

// Publish delivers one integration event. The message key is the event id so
// events for the same id land on the same partition.
func (b *KafkaEventBus) Publish(ctx context.Context, event domain.IntegrationEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event.EventID(), err)
	}

	message := kafka.Message{
		Key:   []byte(event.EventID().String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.EventTypeName())},
		},
	}

	timeout := b.cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	write := func() error {
		b.mu.Lock()
		w := b.w
		b.mu.Unlock()
		if w == nil {
			return context.Canceled
		}
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return w.WriteMessages(cctx, message)
	}

	if err := write(); err != nil {
		// Self-heal the common failure mode of stale broker metadata:
		// recreate the writer and retry once.
		if shouldReset(err) {
			b.resetOnce()
			return write()
		}
		return err
	}
	return nil
}

// Close releases the underlying writer.
func (b *KafkaEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.w == nil {
		return nil
	}
	err := b.w.Close()
	b.w = nil
	return err
}

func shouldReset(err error) bool {
	if err == nil {
		return false
	}
	// Heuristic: reset on typical network/metadata problems.
	s := strings.ToLower(err.Error())
	suspects := []string{
		"dial tcp",
		"connection refused",
		"i/o timeout",
		"eof",
		"broken pipe",
		"transport is closing",
		"not leader",
		"unknown broker",
		"failed to dial",
	}
	for _, sub := range suspects {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func (b *KafkaEventBus) resetOnce() {
	b.mu.Lock()
	defer b.mu.Unlock()
	// Rate-limit resets to avoid tight loops.
	if time.Since(b.lastReset) < 2*time.Second {
		return
	}
	if b.w != nil {
		_ = b.w.Close()
	}
	b.w = newWriter(b.cfg)
	b.lastReset = time.Now()
}
