package evm

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig controls retry behavior for RPC operations.
type RetryConfig struct {
	MaxAttempts int           // total attempts, including the first
	Delay       time.Duration // fixed delay between attempts
}

// WriteRetryConfig is applied to transaction submission.
var WriteRetryConfig = RetryConfig{
	MaxAttempts: 3,
	Delay:       1 * time.Second,
}

// withRetry executes fn up to cfg.MaxAttempts times, sleeping cfg.Delay
// between attempts and respecting context cancellation.
func withRetry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("context cancelled: %w", err)
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt < cfg.MaxAttempts-1 {
			select {
			case <-time.After(cfg.Delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}
	}

	return zero, fmt.Errorf("max retries exceeded: %w", lastErr)
}
