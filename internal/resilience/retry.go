package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls which failed calls are tried again and how long to
// wait in between.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts (including the first try).
	// Values below 1 mean a single attempt.
	MaxAttempts int

	// ShouldRetry decides whether an error is worth another attempt. Nil
	// retries nothing.
	ShouldRetry func(err error) bool

	// OnRetry is called before each retry sleep with attempt number and error.
	OnRetry func(attempt int, err error)

	// Backoff returns the pause before the next attempt, e.g. a
	// server-supplied retry-after hint. Nil retries immediately.
	Backoff func(attempt int, err error) time.Duration
}

// DoVal calls fn until it succeeds, returns an error ShouldRetry rejects, or
// runs out of attempts. Context cancellation stops retries immediately; the
// last error is returned.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := max(cfg.MaxAttempts, 1)

	var zero T
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || cfg.ShouldRetry == nil || !cfg.ShouldRetry(err) {
			return zero, lastErr
		}
		if attempt >= attempts-1 {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err)
		}

		var delay time.Duration
		if cfg.Backoff != nil {
			delay = cfg.Backoff(attempt, err)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}

	return zero, lastErr
}

// RetryLogger returns an OnRetry callback that logs each retry attempt.
func RetryLogger(provider, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("provider", provider),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
