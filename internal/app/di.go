// Package app provides dependency injection container for assembling application components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/shakamirtskhulava/eventlog/internal/bus"
	"github.com/shakamirtskhulava/eventlog/internal/config"
	"github.com/shakamirtskhulava/eventlog/internal/database"
	"github.com/shakamirtskhulava/eventlog/internal/eventlog/domain"
	"github.com/shakamirtskhulava/eventlog/internal/http"
	"github.com/shakamirtskhulava/eventlog/internal/metrics"

	eventlogHTTP "github.com/shakamirtskhulava/eventlog/internal/eventlog/http"
	eventlogRepository "github.com/shakamirtskhulava/eventlog/internal/eventlog/repository"
	eventlogUsecase "github.com/shakamirtskhulava/eventlog/internal/eventlog/usecase"
)

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
type Container struct {
	// Configuration
	config *config.Config

	// Event type registry and optional entity store, supplied by the
	// embedding application.
	registry    *domain.TypeRegistry
	entityStore eventlogUsecase.EntityStore

	// Infrastructure
	logger          *slog.Logger
	db              *sql.DB
	metricsProvider *metrics.Provider
	eventBus        *bus.KafkaEventBus

	// Managers
	txManager database.TxManager

	// Repositories
	eventLogRepo eventlogUsecase.EventLogRepository

	// Use Cases
	eventService eventlogUsecase.EventService
	chainService eventlogUsecase.ChainService
	publisher    *eventlogUsecase.Publisher

	// Handlers and servers
	chainHandler  *eventlogHTTP.ChainHandler
	httpServer    *http.Server
	metricsServer *http.MetricsServer

	// Initialization flags and mutex for thread-safety
	mu                  sync.Mutex
	loggerInit          sync.Once
	dbInit              sync.Once
	metricsProviderInit sync.Once
	eventBusInit        sync.Once
	txManagerInit       sync.Once
	eventLogRepoInit    sync.Once
	eventServiceInit    sync.Once
	chainServiceInit    sync.Once
	publisherInit       sync.Once
	chainHandlerInit    sync.Once
	httpServerInit      sync.Once
	metricsServerInit   sync.Once
	initErrors          map[string]error
}

// NewContainer creates a new dependency injection container. The registry
// carries the integration event types the publisher can decode; entityStore
// may be nil when only the publisher and operator API are run.
func NewContainer(
	cfg *config.Config,
	registry *domain.TypeRegistry,
	entityStore eventlogUsecase.EntityStore,
) *Container {
	return &Container{
		config:      cfg,
		registry:    registry,
		entityStore: entityStore,
		initErrors:  make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Registry returns the integration event type registry.
func (c *Container) Registry() *domain.TypeRegistry {
	return c.registry
}

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the database connection.
// It creates and configures the database connection on first access.
func (c *Container) DB() (*sql.DB, error) {
	var err error
	c.dbInit.Do(func() {
		c.db, err = c.initDB()
		if err != nil {
			c.initErrors["db"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["db"]; exists {
		return nil, storedErr
	}
	return c.db, nil
}

// TxManager returns the transaction manager.
// It requires a database connection to be initialized first.
func (c *Container) TxManager() (database.TxManager, error) {
	var err error
	c.txManagerInit.Do(func() {
		c.txManager, err = c.initTxManager()
		if err != nil {
			c.initErrors["txManager"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["txManager"]; exists {
		return nil, storedErr
	}
	return c.txManager, nil
}

// EventLogRepository returns the event log repository instance.
func (c *Container) EventLogRepository() (eventlogUsecase.EventLogRepository, error) {
	var err error
	c.eventLogRepoInit.Do(func() {
		c.eventLogRepo, err = c.initEventLogRepository()
		if err != nil {
			c.initErrors["eventLogRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["eventLogRepo"]; exists {
		return nil, storedErr
	}
	return c.eventLogRepo, nil
}

// EventService returns the integration event service instance.
func (c *Container) EventService() (eventlogUsecase.EventService, error) {
	var err error
	c.eventServiceInit.Do(func() {
		c.eventService, err = c.initEventService()
		if err != nil {
			c.initErrors["eventService"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["eventService"]; exists {
		return nil, storedErr
	}
	return c.eventService, nil
}

// ChainService returns the failed-message chain service instance.
func (c *Container) ChainService() (eventlogUsecase.ChainService, error) {
	var err error
	c.chainServiceInit.Do(func() {
		c.chainService, err = c.initChainService()
		if err != nil {
			c.initErrors["chainService"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["chainService"]; exists {
		return nil, storedErr
	}
	return c.chainService, nil
}

// EventBus returns the Kafka event bus instance.
func (c *Container) EventBus() (*bus.KafkaEventBus, error) {
	c.eventBusInit.Do(func() {
		c.eventBus = bus.NewKafkaEventBus(bus.Config{
			Brokers:      c.config.KafkaBrokers,
			Topic:        c.config.KafkaTopic,
			ClientID:     c.config.KafkaClientID,
			WriteTimeout: c.config.KafkaWriteTimeout,
		})
	})
	return c.eventBus, nil
}

// MetricsProvider returns the metrics provider, or nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	var err error
	c.metricsProviderInit.Do(func() {
		if !c.config.MetricsEnabled {
			return
		}
		c.metricsProvider, err = metrics.NewProvider()
		if err != nil {
			c.initErrors["metricsProvider"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsProvider"]; exists {
		return nil, storedErr
	}
	return c.metricsProvider, nil
}

// Publisher returns the event publisher instance.
func (c *Container) Publisher() (*eventlogUsecase.Publisher, error) {
	var err error
	c.publisherInit.Do(func() {
		c.publisher, err = c.initPublisher()
		if err != nil {
			c.initErrors["publisher"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["publisher"]; exists {
		return nil, storedErr
	}
	return c.publisher, nil
}

// ChainHandler returns the HTTP handler for chain operations.
func (c *Container) ChainHandler() (*eventlogHTTP.ChainHandler, error) {
	var err error
	c.chainHandlerInit.Do(func() {
		c.chainHandler, err = c.initChainHandler()
		if err != nil {
			c.initErrors["chainHandler"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["chainHandler"]; exists {
		return nil, storedErr
	}
	return c.chainHandler, nil
}

// HTTPServer returns the operator HTTP server instance.
func (c *Container) HTTPServer() (*http.Server, error) {
	var err error
	c.httpServerInit.Do(func() {
		c.httpServer, err = c.initHTTPServer()
		if err != nil {
			c.initErrors["httpServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["httpServer"]; exists {
		return nil, storedErr
	}
	return c.httpServer, nil
}

// MetricsServer returns the metrics server, or nil when metrics are disabled.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	var err error
	c.metricsServerInit.Do(func() {
		var provider *metrics.Provider
		provider, err = c.MetricsProvider()
		if err != nil {
			c.initErrors["metricsServer"] = err
			return
		}
		if provider == nil {
			return
		}
		c.metricsServer = http.NewMetricsServer(
			c.config.ServerHost,
			c.config.MetricsPort,
			c.Logger(),
			provider,
		)
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsServer"]; exists {
		return nil, storedErr
	}
	return c.metricsServer, nil
}

// Shutdown performs cleanup of all initialized resources.
// It should be called when the application is shutting down.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if c.eventBus != nil {
		if err := c.eventBus.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("event bus close: %w", err))
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	return nil
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

// initDB creates and configures the database connection.
func (c *Container) initDB() (*sql.DB, error) {
	db, err := database.Connect(database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   c.config.DBConnectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// initTxManager creates the transaction manager using the database connection.
func (c *Container) initTxManager() (database.TxManager, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for tx manager: %w", err)
	}
	return database.NewTxManager(db), nil
}

// initEventLogRepository creates the event log repository instance.
func (c *Container) initEventLogRepository() (eventlogUsecase.EventLogRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for event log repository: %w", err)
	}

	// Select the appropriate repository based on the database driver
	switch c.config.DBDriver {
	case "mysql":
		return eventlogRepository.NewMySQLEventLogRepository(db), nil
	case "postgres":
		return eventlogRepository.NewPostgreSQLEventLogRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initEventService creates the integration event service with all its dependencies.
func (c *Container) initEventService() (eventlogUsecase.EventService, error) {
	if c.registry == nil {
		return nil, fmt.Errorf("event type registry is required")
	}

	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for event service: %w", err)
	}

	repo, err := c.EventLogRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get repository for event service: %w", err)
	}

	return eventlogUsecase.NewIntegrationEventService(
		txManager,
		database.DefaultRetryConfig(),
		repo,
		c.entityStore,
		c.registry,
		c.Logger(),
	), nil
}

// initChainService creates the failed-message chain service.
func (c *Container) initChainService() (eventlogUsecase.ChainService, error) {
	repo, err := c.EventLogRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get repository for chain service: %w", err)
	}
	return eventlogUsecase.NewFailedMessageChainService(repo, c.Logger()), nil
}

// initPublisher creates the event publisher with all its dependencies.
func (c *Container) initPublisher() (*eventlogUsecase.Publisher, error) {
	eventService, err := c.EventService()
	if err != nil {
		return nil, fmt.Errorf("failed to get event service for publisher: %w", err)
	}

	repo, err := c.EventLogRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get repository for publisher: %w", err)
	}

	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for publisher: %w", err)
	}

	eventBus, err := c.EventBus()
	if err != nil {
		return nil, fmt.Errorf("failed to get event bus for publisher: %w", err)
	}

	publisherMetrics, err := c.publisherMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics for publisher: %w", err)
	}

	publisherConfig := eventlogUsecase.PublisherConfig{
		PollDelay:          c.config.PublisherPollDelay,
		EventsBatchSize:    c.config.PublisherEventsBatchSize,
		ChainBatchSize:     c.config.PublisherChainBatchSize,
		BrokerWaitTimeout:  c.config.PublisherBrokerWaitTimeout,
		BrokerWaitInterval: c.config.PublisherBrokerWaitInterval,
	}

	return eventlogUsecase.NewPublisher(
		publisherConfig,
		eventService,
		repo,
		txManager,
		eventBus,
		publisherMetrics,
		c.Logger(),
	), nil
}

// publisherMetrics builds the publisher metrics recorder, falling back to a
// no-op recorder when metrics are disabled.
func (c *Container) publisherMetrics() (metrics.PublisherMetrics, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return metrics.NewNoOpPublisherMetrics(), nil
	}
	return metrics.NewPublisherMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
}

// initChainHandler creates the chain HTTP handler with all its dependencies.
func (c *Container) initChainHandler() (*eventlogHTTP.ChainHandler, error) {
	chainService, err := c.ChainService()
	if err != nil {
		return nil, fmt.Errorf("failed to get chain service for handler: %w", err)
	}
	return eventlogHTTP.NewChainHandler(chainService, c.Logger()), nil
}

// initHTTPServer creates the operator HTTP server with all its dependencies.
func (c *Container) initHTTPServer() (*http.Server, error) {
	logger := c.Logger()

	chainHandler, err := c.ChainHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get chain handler for http server: %w", err)
	}

	var extra []http.Middleware
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for http server: %w", err)
	}
	if provider != nil {
		extra = append(extra, metrics.HTTPMetricsMiddleware(
			provider.MeterProvider(),
			c.config.MetricsNamespace,
		))
	}

	return http.NewServer(
		c.config.ServerHost,
		c.config.ServerPort,
		logger,
		chainHandler,
		extra...,
	), nil
}
