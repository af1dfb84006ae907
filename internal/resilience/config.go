package resilience

import (
	"time"
)

// FromCircuitConfig converts config values to a CircuitBreakerConfig.
// Non-positive values keep the defaults.
func FromCircuitConfig(failureThreshold int, cooldown time.Duration) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if cooldown > 0 {
		cfg.ResetTimeout = cooldown
	}
	return cfg
}

// RateLimitRetryConfig returns the retry policy for provider calls: at most
// one extra attempt, taken only when the provider supplied a retry-after
// hint that fits before deadline.
func RateLimitRetryConfig(deadline time.Time) RetryConfig {
	return RetryConfig{
		MaxAttempts: 2,
		ShouldRetry: func(err error) bool {
			hint, ok := RetryAfterHint(err)
			return ok && hint < time.Until(deadline)
		},
		Backoff: func(_ int, err error) time.Duration {
			hint, _ := RetryAfterHint(err)
			return hint
		},
	}
}
