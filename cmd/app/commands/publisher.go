package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/shakamirtskhulava/eventlog/internal/app"
	"github.com/shakamirtskhulava/eventlog/internal/config"
	"github.com/shakamirtskhulava/eventlog/internal/eventlog/domain"
)

// shutdownTimeout bounds graceful shutdown of the HTTP servers.
const shutdownTimeout = 15 * time.Second

// RunPublisher starts the event publisher, the operator HTTP API, and the
// metrics server, and blocks until SIGINT/SIGTERM or a fatal error.
//
// The registry carries the integration event types this deployment can
// decode; embedding applications call this with their own populated registry.
// When nil, an empty registry with the configured qualifier is used.
func RunPublisher(ctx context.Context, version string, registry *domain.TypeRegistry) error {
	cfg := config.Load()

	// Set Gin mode based on log level
	gin.SetMode(cfg.GetGinMode())

	if registry == nil {
		registry = domain.NewTypeRegistry(cfg.EventTypeQualifier)
	}

	container := app.NewContainer(cfg, registry, nil)

	logger := container.Logger()
	logger.Info("starting publisher", slog.String("version", version))

	defer closeContainer(container, logger)

	publisher, err := container.Publisher()
	if err != nil {
		return fmt.Errorf("failed to initialize publisher: %w", err)
	}

	server, err := container.HTTPServer()
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		err := publisher.Start(groupCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	group.Go(func() error {
		if err := server.Start(groupCtx); err != nil {
			return fmt.Errorf("api server error: %w", err)
		}
		return nil
	})

	if metricsServer != nil {
		group.Go(func() error {
			if err := metricsServer.Start(groupCtx); err != nil {
				return fmt.Errorf("metrics server error: %w", err)
			}
			return nil
		})
	}

	// Shut the servers down once the group context is cancelled, either by a
	// signal or by a failing component.
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown initiated")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		var shutdownErrors []error

		if err := server.Shutdown(shutdownCtx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("api server shutdown: %w", err))
		}

		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
			}
		}

		return errors.Join(shutdownErrors...)
	})

	return group.Wait()
}
