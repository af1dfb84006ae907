// Package cache stores complete sourcing results keyed by the canonical
// query's cache key. Every backend applies the same TTL semantics; failures
// surface as errors matching ErrCacheUnavailable and never abort a session.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/offer-sourcing/internal/model"
)

// ErrCacheUnavailable matches every backend failure.
var ErrCacheUnavailable = eris.New("cache unavailable")

// Entry is a cached session output plus the time it was stored.
type Entry struct {
	Result   model.SourcingResult `json:"result"`
	StoredAt time.Time            `json:"stored_at"`
}

// Cache is the key-value contract shared by all backends. A miss is
// (nil, false, nil). Concurrent Sets for one key are last-writer-wins.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	Close() error
}

// UnavailableError wraps a backend failure.
type UnavailableError struct {
	Backend string
	Op      string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("cache %s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is reports true for ErrCacheUnavailable.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrCacheUnavailable
}

func unavailable(backend, op string, err error) error {
	return &UnavailableError{Backend: backend, Op: op, Err: err}
}

// IsUnavailable reports whether err came from a cache backend.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrCacheUnavailable)
}

func encode(e Entry) ([]byte, error) {
	return json.Marshal(e)
}

func decode(b []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Nop never stores anything.
type Nop struct{}

// Get always misses.
func (Nop) Get(context.Context, string) (*Entry, bool, error) { return nil, false, nil }

// Set discards the entry.
func (Nop) Set(context.Context, string, Entry, time.Duration) error { return nil }

// Close is a no-op.
func (Nop) Close() error { return nil }
