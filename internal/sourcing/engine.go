// Package sourcing runs a canonical query end to end: cache lookup, provider
// fan-out, normalization, deduplication and ranking.
package sourcing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/offer-sourcing/internal/audit"
	"github.com/sells-group/offer-sourcing/internal/cache"
	"github.com/sells-group/offer-sourcing/internal/dedup"
	"github.com/sells-group/offer-sourcing/internal/metrics"
	"github.com/sells-group/offer-sourcing/internal/model"
	"github.com/sells-group/offer-sourcing/internal/normalize"
	"github.com/sells-group/offer-sourcing/internal/orchestrator"
	"github.com/sells-group/offer-sourcing/internal/scorer"
)

const (
	defaultDeadline     = 4 * time.Second
	defaultCacheTTL     = 5 * time.Minute
	defaultAuditTimeout = 5 * time.Second
)

// Config holds the engine's static settings.
type Config struct {
	Deadline     time.Duration
	CacheTTL     time.Duration
	Dedup        dedup.Config
	AuditTimeout time.Duration
}

// Options are the per-call overrides.
type Options struct {
	// ForceRefresh skips the cache read; the fresh result is still written.
	ForceRefresh bool
	// Deadline overrides Config.Deadline when positive.
	Deadline time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache sets the cache backend.
func WithCache(c cache.Cache) Option { return func(e *Engine) { e.cache = c } }

// WithAudit sets the raw payload sink.
func WithAudit(s audit.Sink) Option { return func(e *Engine) { e.audit = s } }

// WithMetrics records cache and session metrics.
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithIDFunc overrides session id generation.
func WithIDFunc(fn func() string) Option { return func(e *Engine) { e.newID = fn } }

// WithSessionObserver is called when a live session is dispatched.
func WithSessionObserver(fn func(*Session)) Option { return func(e *Engine) { e.onSession = fn } }

// Engine is safe for concurrent use. One instance serves the process.
type Engine struct {
	cfg    Config
	orch   *orchestrator.Orchestrator
	norm   *normalize.Normalizer
	scorer *scorer.Scorer

	cache     cache.Cache
	audit     audit.Sink
	metrics   *metrics.Metrics
	now       func() time.Time
	newID     func() string
	onSession func(*Session)

	flights singleflight.Group
}

// New creates an engine. Missing config values take their defaults.
func New(cfg Config, orch *orchestrator.Orchestrator, norm *normalize.Normalizer, sc *scorer.Scorer, opts ...Option) *Engine {
	if cfg.Deadline <= 0 {
		cfg.Deadline = defaultDeadline
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.AuditTimeout <= 0 {
		cfg.AuditTimeout = defaultAuditTimeout
	}
	if cfg.Dedup == (dedup.Config{}) {
		cfg.Dedup = dedup.DefaultConfig()
	}
	e := &Engine{
		cfg:    cfg,
		orch:   orch,
		norm:   norm,
		scorer: sc,
		cache:  cache.Nop{},
		audit:  audit.Nop{},
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search returns ranked offers for q. The only error it returns wraps
// model.ErrInvalidQuery; provider and cache failures degrade the result
// instead.
func (e *Engine) Search(ctx context.Context, q model.CanonicalQuery, opts Options) (*model.SourcingResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	key := q.CacheKey()

	budget := e.budget(opts)

	// Live fetches run detached from the caller's cancellation so a client
	// that goes away cannot cut providers off before the session deadline.
	if opts.ForceRefresh {
		e.metrics.ObserveCache(metrics.CacheBypass)
		return e.live(context.WithoutCancel(ctx), q, budget), nil
	}

	entry, ok, err := e.cache.Get(ctx, key)
	switch {
	case err != nil:
		e.metrics.ObserveCache(metrics.CacheError)
		zap.L().Warn("sourcing: cache read failed, fetching live",
			zap.String("cache_key", key),
			zap.Error(err),
		)
	case ok:
		e.metrics.ObserveCache(metrics.CacheHit)
		res := cloneResult(&entry.Result)
		res.ServedFromCache = true
		zap.L().Info("sourcing: served from cache",
			zap.String("cache_key", key),
			zap.String("session_id", res.SessionID),
			zap.Time("stored_at", entry.StoredAt),
			zap.Int("offers", len(res.Offers)),
		)
		return res, nil
	default:
		e.metrics.ObserveCache(metrics.CacheMiss)
	}

	// Identical concurrent misses with the same deadline share one fan-out.
	v, _, _ := e.flights.Do(key+"|"+budget.String(), func() (any, error) {
		return e.live(context.WithoutCancel(ctx), q, budget), nil
	})
	return cloneResult(v.(*model.SourcingResult)), nil
}

func (e *Engine) budget(opts Options) time.Duration {
	if opts.Deadline > 0 {
		return opts.Deadline
	}
	return e.cfg.Deadline
}

func (e *Engine) live(ctx context.Context, q model.CanonicalQuery, budget time.Duration) *model.SourcingResult {
	start := e.now()
	sess := newSession(e.newID(), q, start, start.Add(budget))
	if e.onSession != nil {
		e.onSession(sess)
	}

	// The orchestrator measures against the wall clock.
	out := e.orch.RunObserved(ctx, q, time.Now().Add(budget), sess.observe)
	sess.complete()

	offers, dropped := e.norm.NormalizeAll(out.Results)
	dd := dedup.Dedupe(offers, e.cfg.Dedup)
	ranked := e.scorer.Rank(dd.Offers, q)
	if ranked == nil {
		ranked = []model.NormalizedOffer{}
	}

	res := &model.SourcingResult{
		SessionID:      sess.ID,
		CacheKey:       sess.CacheKey,
		Query:          q,
		GeneratedAt:    e.now().UTC(),
		Offers:         ranked,
		ProviderStatus: out.Reports,
		Stats: model.SessionStats{
			RawResults:      len(out.Results),
			Normalized:      len(offers),
			Dropped:         dropped,
			UniqueOffers:    len(ranked),
			DuplicateGroups: dd.Groups,
		},
	}

	e.store(ctx, res)
	e.record(ctx, sess, out.Results)
	e.logSession(res, e.now().Sub(start))
	e.metrics.ObserveSession(e.now().Sub(start), len(ranked))
	return res
}

// store writes res through to the cache. Results with no successful
// provider are not cached so a provider outage is not pinned for the TTL.
func (e *Engine) store(ctx context.Context, res *model.SourcingResult) {
	if res.Succeeded() == 0 {
		return
	}
	entry := cache.Entry{Result: *res, StoredAt: e.now().UTC()}
	if err := e.cache.Set(ctx, res.CacheKey, entry, e.cfg.CacheTTL); err != nil {
		e.metrics.ObserveCache(metrics.CacheError)
		zap.L().Warn("sourcing: cache write failed",
			zap.String("cache_key", res.CacheKey),
			zap.Error(err),
		)
	}
}

func (e *Engine) record(ctx context.Context, sess *Session, raws []model.RawResult) {
	if len(raws) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.AuditTimeout)
	defer cancel()
	if err := e.audit.Record(ctx, sess.ID, sess.CacheKey, raws); err != nil {
		zap.L().Warn("sourcing: audit write failed",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
	}
}

func (e *Engine) logSession(res *model.SourcingResult, elapsed time.Duration) {
	level := zapcore.InfoLevel
	failed := 0
	for _, s := range res.ProviderStatus {
		if s.Status != model.StatusSucceeded {
			failed++
		}
	}
	switch {
	case len(res.ProviderStatus) > 0 && failed == len(res.ProviderStatus):
		level = zapcore.ErrorLevel
	case failed > 0:
		level = zapcore.WarnLevel
	}

	providers := make([]zap.Field, 0, len(res.ProviderStatus))
	for _, s := range res.ProviderStatus {
		providers = append(providers, zap.Dict(s.Provider,
			zap.String("status", string(s.Status)),
			zap.Int64("latency_ms", s.Latency.Milliseconds()),
			zap.Int("results", s.ResultCount),
		))
	}

	if ce := zap.L().Check(level, "sourcing: session complete"); ce != nil {
		ce.Write(
			zap.String("session_id", res.SessionID),
			zap.String("cache_key", res.CacheKey),
			zap.Duration("elapsed", elapsed),
			zap.Int("raw_results", res.Stats.RawResults),
			zap.Int("unique_offers", res.Stats.UniqueOffers),
			zap.Int("duplicate_groups", res.Stats.DuplicateGroups),
			zap.Any("dropped", res.Stats.Dropped),
			zap.Int("providers_failed", failed),
			zap.Bool("cached", res.ServedFromCache),
			zap.Dict("providers", providers...),
		)
	}
}

// cloneResult deep-copies the parts of r a caller could mutate.
func cloneResult(r *model.SourcingResult) *model.SourcingResult {
	out := *r
	out.Offers = make([]model.NormalizedOffer, len(r.Offers))
	for i, o := range r.Offers {
		o.Provenance = append([]string(nil), o.Provenance...)
		if o.Attributes != nil {
			attrs := make(map[string]string, len(o.Attributes))
			for k, v := range o.Attributes {
				attrs[k] = v
			}
			o.Attributes = attrs
		}
		out.Offers[i] = o
	}
	out.ProviderStatus = append([]model.ProviderStatusReport(nil), r.ProviderStatus...)
	if r.Stats.Dropped != nil {
		out.Stats.Dropped = make(map[string]int, len(r.Stats.Dropped))
		for k, v := range r.Stats.Dropped {
			out.Stats.Dropped[k] = v
		}
	}
	return &out
}
