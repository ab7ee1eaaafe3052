package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shakamirtskhulava/eventlog/internal/config"
	"github.com/shakamirtskhulava/eventlog/internal/eventlog/domain"
)

func testConfig() *config.Config {
	return &config.Config{
		ServerHost:        "localhost",
		ServerPort:        8080,
		DBDriver:          "postgres",
		LogLevel:          "error",
		KafkaBrokers:      []string{"localhost:9092"},
		KafkaTopic:        "integration-events",
		KafkaClientID:     "test",
		KafkaWriteTimeout: time.Second,
		MetricsEnabled:    false,
		MetricsNamespace:  "eventlog",
		MetricsPort:       8081,
	}
}

func TestContainer_Logger_SameInstance(t *testing.T) {
	container := NewContainer(testConfig(), domain.NewTypeRegistry(""), nil)

	logger1 := container.Logger()
	logger2 := container.Logger()

	require.NotNil(t, logger1)
	assert.Same(t, logger1, logger2)
}

func TestContainer_EventService_RequiresRegistry(t *testing.T) {
	container := NewContainer(testConfig(), nil, nil)

	_, err := container.EventService()
	assert.Error(t, err)
}

func TestContainer_EventBus_SameInstance(t *testing.T) {
	container := NewContainer(testConfig(), domain.NewTypeRegistry(""), nil)

	bus1, err := container.EventBus()
	require.NoError(t, err)
	bus2, err := container.EventBus()
	require.NoError(t, err)

	assert.Same(t, bus1, bus2)
}

func TestContainer_MetricsDisabled(t *testing.T) {
	container := NewContainer(testConfig(), domain.NewTypeRegistry(""), nil)

	provider, err := container.MetricsProvider()
	require.NoError(t, err)
	assert.Nil(t, provider)

	server, err := container.MetricsServer()
	require.NoError(t, err)
	assert.Nil(t, server)
}

func TestContainer_MetricsEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.MetricsEnabled = true
	container := NewContainer(cfg, domain.NewTypeRegistry(""), nil)

	provider, err := container.MetricsProvider()
	require.NoError(t, err)
	require.NotNil(t, provider)

	server, err := container.MetricsServer()
	require.NoError(t, err)
	assert.NotNil(t, server)
}

func TestContainer_Shutdown_NothingInitialized(t *testing.T) {
	container := NewContainer(testConfig(), domain.NewTypeRegistry(""), nil)

	assert.NoError(t, container.Shutdown(context.Background()))
}
