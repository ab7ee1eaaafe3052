package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewKafkaEventBus(t *testing.T) {
	bus := NewKafkaEventBus(Config{
		Brokers:      []string{"localhost:9092"},
		Topic:        "integration-events",
		ClientID:     "test-publisher",
		WriteTimeout: time.Second,
	})
	defer func() { _ = bus.Close() }()

	assert.NotNil(t, bus.w)
	assert.Equal(t, "integration-events", bus.cfg.Topic)
}

func TestKafkaEventBus_IsReady_NoBroker(t *testing.T) {
	bus := NewKafkaEventBus(Config{
		// Reserved port that nothing listens on.
		Brokers: []string{"localhost:1"},
		Topic:   "integration-events",
	})
	defer func() { _ = bus.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	assert.False(t, bus.IsReady(ctx))
}

func TestKafkaEventBus_Close_Idempotent(t *testing.T) {
	bus := NewKafkaEventBus(Config{
		Brokers: []string{"localhost:9092"},
		Topic:   "integration-events",
	})

	assert.NoError(t, bus.Close())
	assert.NoError(t, bus.Close())
}

func TestShouldReset(t *testing.T) {
	assert.False(t, shouldReset(nil))
	assert.False(t, shouldReset(errors.New("message too large")))
	assert.True(t, shouldReset(errors.New("dial tcp 10.0.0.1:9092: connection refused")))
	assert.True(t, shouldReset(errors.New("unexpected EOF")))
	assert.True(t, shouldReset(errors.New("Not Leader For Partition")))
}
