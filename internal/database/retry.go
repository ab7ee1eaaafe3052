package database

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "github.com/shakamirtskhulava/eventlog/internal/errors"
)

// RetryConfig bounds the retry policy for transient infrastructure faults.
type RetryConfig struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns the retry policy used when none is provided.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// WithRetry runs fn under a bounded exponential-backoff policy. Only errors
// marked transient (apperrors.Transient) are retried; business errors
// propagate on the first attempt. Exhaustion surfaces the last error.
func WithRetry(ctx context.Context, cfg RetryConfig, logger *slog.Logger, fn func(ctx context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cfg.InitialInterval
	policy.MaxInterval = cfg.MaxInterval

	attempt := 0
	operation := func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !apperrors.IsTransient(err) {
			return backoff.Permanent(err)
		}
		if logger != nil {
			logger.Warn("transient database fault, retrying",
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
		}
		return err
	}

	bounded := backoff.WithMaxRetries(backoff.WithContext(policy, ctx), cfg.MaxRetries)
	return backoff.Retry(operation, bounded)
}
