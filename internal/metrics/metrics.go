// Package metrics holds the Prometheus collectors for sourcing sessions.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache lookup results.
const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheError  = "error"
	CacheBypass = "bypass"
)

// Metrics groups the collectors registered for one process.
type Metrics struct {
	ProviderCalls   *prometheus.CounterVec
	ProviderLatency *prometheus.HistogramVec
	BreakerSkips    *prometheus.CounterVec
	BreakerChanges  *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
	SessionDuration prometheus.Histogram
	OffersReturned  prometheus.Histogram
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ProviderCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sourcing_provider_calls_total",
				Help: "Provider outcomes per session by status",
			},
			[]string{"provider", "status"},
		),
		ProviderLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sourcing_provider_latency_seconds",
				Help:    "Latency of provider fetches",
				Buckets: []float64{.05, .1, .25, .5, 1, 2, 4, 8},
			},
			[]string{"provider"},
		),
		BreakerSkips: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sourcing_breaker_skips_total",
				Help: "Provider calls skipped because the circuit was open",
			},
			[]string{"provider"},
		),
		BreakerChanges: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sourcing_breaker_transitions_total",
				Help: "Circuit breaker state changes by target state",
			},
			[]string{"provider", "state"},
		),
		CacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sourcing_cache_lookups_total",
				Help: "Cache lookups by result",
			},
			[]string{"result"},
		),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sourcing_session_duration_seconds",
			Help:    "Wall-clock duration of sourcing sessions",
			Buckets: prometheus.DefBuckets,
		}),
		OffersReturned: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sourcing_offers_returned",
			Help:    "Number of offers returned per session",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		}),
	}
}

// ObserveProvider records one provider outcome. Skipped providers have no latency.
func (m *Metrics) ObserveProvider(provider, status string, latency time.Duration, skipped bool) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(provider, status).Inc()
	if skipped {
		m.BreakerSkips.WithLabelValues(provider).Inc()
		return
	}
	m.ProviderLatency.WithLabelValues(provider).Observe(latency.Seconds())
}

// ObserveBreaker records a provider's circuit moving to state.
func (m *Metrics) ObserveBreaker(provider, state string) {
	if m == nil {
		return
	}
	m.BreakerChanges.WithLabelValues(provider, state).Inc()
}

// ObserveCache records a cache lookup result.
func (m *Metrics) ObserveCache(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ObserveSession records a completed session.
func (m *Metrics) ObserveSession(d time.Duration, offers int) {
	if m == nil {
		return
	}
	m.SessionDuration.Observe(d.Seconds())
	m.OffersReturned.Observe(float64(offers))
}
