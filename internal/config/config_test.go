package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "load default configuration",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "0.0.0.0", cfg.ServerHost)
				assert.Equal(t, 8080, cfg.ServerPort)
				assert.Equal(t, "postgres", cfg.DBDriver)
				assert.Equal(t, 25, cfg.DBMaxOpenConnections)
				assert.Equal(t, 5, cfg.DBMaxIdleConnections)
				assert.Equal(t, 5*time.Minute, cfg.DBConnMaxLifetime)
				assert.Equal(t, "info", cfg.LogLevel)
				assert.Equal(t, 5*time.Second, cfg.PublisherPollDelay)
				assert.Equal(t, 50, cfg.PublisherEventsBatchSize)
				assert.Equal(t, 10, cfg.PublisherChainBatchSize)
				assert.Equal(t, 60*time.Second, cfg.PublisherBrokerWaitTimeout)
				assert.Equal(t, 100*time.Millisecond, cfg.PublisherBrokerWaitInterval)
				assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
				assert.Equal(t, "integration-events", cfg.KafkaTopic)
				assert.True(t, cfg.MetricsEnabled)
				assert.Equal(t, "eventlog", cfg.MetricsNamespace)
				assert.Equal(t, 8081, cfg.MetricsPort)
			},
		},
		{
			name: "load custom publisher configuration",
			envVars: map[string]string{
				"PUBLISHER_POLL_DELAY_MS":               "250",
				"PUBLISHER_EVENTS_BATCH_SIZE":           "100",
				"PUBLISHER_CHAIN_BATCH_SIZE":            "5",
				"PUBLISHER_BROKER_WAIT_TIMEOUT_SECONDS": "30",
				"EVENT_TYPE_QUALIFIER":                  "billing",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 250*time.Millisecond, cfg.PublisherPollDelay)
				assert.Equal(t, 100, cfg.PublisherEventsBatchSize)
				assert.Equal(t, 5, cfg.PublisherChainBatchSize)
				assert.Equal(t, 30*time.Second, cfg.PublisherBrokerWaitTimeout)
				assert.Equal(t, "billing", cfg.EventTypeQualifier)
			},
		},
		{
			name: "load custom kafka configuration",
			envVars: map[string]string{
				"KAFKA_BROKERS":   "broker-1:9092, broker-2:9092,",
				"KAFKA_TOPIC":     "orders",
				"KAFKA_CLIENT_ID": "orders-publisher",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
				assert.Equal(t, "orders", cfg.KafkaTopic)
				assert.Equal(t, "orders-publisher", cfg.KafkaClientID)
			},
		},
		{
			name: "load custom database configuration",
			envVars: map[string]string{
				"DB_DRIVER":               "mysql",
				"DB_CONNECTION_STRING":    "user:password@tcp(localhost:3306)/testdb",
				"DB_MAX_OPEN_CONNECTIONS": "50",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "mysql", cfg.DBDriver)
				assert.Equal(t, "user:password@tcp(localhost:3306)/testdb", cfg.DBConnectionString)
				assert.Equal(t, 50, cfg.DBMaxOpenConnections)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				require.NoError(t, os.Setenv(key, value))
			}
			defer func() {
				for key := range tt.envVars {
					require.NoError(t, os.Unsetenv(key))
				}
			}()

			cfg := Load()
			tt.validate(t, cfg)
		})
	}
}

func TestGetGinMode(t *testing.T) {
	tests := []struct {
		logLevel string
		want     string
	}{
		{"debug", "debug"},
		{"info", "release"},
		{"warn", "release"},
		{"error", "release"},
		{"unknown", "release"},
	}

	for _, tt := range tests {
		t.Run(tt.logLevel, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}
			assert.Equal(t, tt.want, cfg.GetGinMode())
		})
	}
}
