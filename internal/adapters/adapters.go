// Package adapters maps concrete provider APIs onto provider.Adapter.
package adapters

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/offer-sourcing/internal/fetcher"
)

// throttled waits on limiter, runs fn, and feeds the outcome back so the
// limiter can adapt. A nil limiter disables throttling.
func throttled[T any](ctx context.Context, limiter *fetcher.AdaptiveLimiter, fn func(ctx context.Context) (T, error)) (T, error) {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			var zero T
			if ctx.Err() != nil {
				return zero, eris.Wrap(ctx.Err(), "rate limiter wait")
			}
			// The limiter refuses waits that would outlast the deadline.
			return zero, eris.Wrapf(context.DeadlineExceeded, "rate limiter wait: %v", err)
		}
	}
	v, err := fn(ctx)
	if limiter != nil {
		limiter.Observe(err)
	}
	return v, err
}

// payload converts a provider item into a generic map for the audit trail.
func payload(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

// setAttr stores a non-empty value under key.
func setAttr(attrs map[string]string, key, value string) {
	value = strings.TrimSpace(value)
	if value != "" {
		attrs[key] = value
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
