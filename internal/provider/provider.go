// Package provider defines the adapter contract shared by every offer source.
package provider

import (
	"context"
	"errors"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/sells-group/offer-sourcing/internal/model"
	"github.com/sells-group/offer-sourcing/internal/resilience"
)

// Adapter translates a canonical query into one provider's request and maps
// the response into raw results. Implementations must honor ctx: the
// orchestrator cancels it when the session deadline passes. budget is the
// wall-clock time left at dispatch.
type Adapter interface {
	// Name returns the provider identifier used in status reports.
	Name() string
	// Fetch runs the query. A nil error means success, even with no results.
	Fetch(ctx context.Context, query model.CanonicalQuery, budget time.Duration) ([]model.RawResult, error)
}

// AdapterFunc adapts a function to the Adapter interface.
type AdapterFunc struct {
	ID string
	Fn func(ctx context.Context, query model.CanonicalQuery, budget time.Duration) ([]model.RawResult, error)
}

// Name implements Adapter.
func (f AdapterFunc) Name() string { return f.ID }

// Fetch implements Adapter.
func (f AdapterFunc) Fetch(ctx context.Context, q model.CanonicalQuery, budget time.Duration) ([]model.RawResult, error) {
	return f.Fn(ctx, q, budget)
}

// Classify maps an adapter error onto the status taxonomy.
func Classify(err error) model.ProviderStatus {
	if err == nil {
		return model.StatusSucceeded
	}
	if resilience.IsRateLimited(err) {
		return model.StatusRateLimited
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.StatusTimedOut
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.StatusTimedOut
	}
	return model.StatusErrored
}

// Registry holds the configured adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	tiers    map[string]int
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
		tiers:    make(map[string]int),
	}
}

// Register adds an adapter with its trust tier, replacing any adapter of
// the same name.
func (r *Registry) Register(a Adapter, trustTier int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
	r.tiers[a.Name()] = trustTier
}

// Get returns an adapter by name, or nil if not found.
func (r *Registry) Get(name string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[name]
}

// List returns all registered adapter names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Adapters returns the registered adapters sorted by name.
func (r *Registry) Adapters() []Adapter {
	names := r.List()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(names))
	for _, n := range names {
		out = append(out, r.adapters[n])
	}
	return out
}

// TrustTiers returns a copy of the provider to trust tier map.
func (r *Registry) TrustTiers() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(r.tiers))
	for k, v := range r.tiers {
		out[k] = v
	}
	return out
}
