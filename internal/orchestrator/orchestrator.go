// Package orchestrator fans a canonical query out to every configured
// provider adapter under one shared deadline.
package orchestrator

import (
	"context"
	"sort"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sells-group/offer-sourcing/internal/metrics"
	"github.com/sells-group/offer-sourcing/internal/model"
	"github.com/sells-group/offer-sourcing/internal/provider"
	"github.com/sells-group/offer-sourcing/internal/redact"
	"github.com/sells-group/offer-sourcing/internal/resilience"
)

const tracerName = "github.com/sells-group/offer-sourcing/internal/orchestrator"

// maxMessageLen caps the display width of the error text copied into a
// status report.
const maxMessageLen = 160

// Config holds the static orchestrator settings.
type Config struct {
	// FailureThreshold is the consecutive failure count that opens a
	// provider's circuit. Default 3.
	FailureThreshold int
	// Cooldown is how long an open circuit rejects calls before a probe.
	// Default 30s.
	Cooldown time.Duration
}

// Outcome is the collected result of one fan-out.
type Outcome struct {
	// Results holds raw results grouped by provider in provider-name order.
	Results []model.RawResult
	// Reports has exactly one entry per registered adapter, sorted by provider.
	Reports []model.ProviderStatusReport
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock injects the clock used for latency and breaker cooldowns.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithMetrics records provider outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithStatusHook is called as each provider report is finalized.
func WithStatusHook(fn func(model.ProviderStatusReport)) Option {
	return func(o *Orchestrator) { o.onStatus = fn }
}

// Orchestrator runs adapters concurrently. The circuit breakers it holds are
// shared by every session, so one instance should serve the whole process.
type Orchestrator struct {
	registry *provider.Registry
	breakers *resilience.ServiceBreakers
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	now      func() time.Time
	onStatus func(model.ProviderStatusReport)
}

// New creates an orchestrator over the adapters in registry.
func New(registry *provider.Registry, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}

	bcfg := resilience.FromCircuitConfig(cfg.FailureThreshold, cfg.Cooldown)
	bcfg.Now = o.now
	o.breakers = resilience.NewServiceBreakers(bcfg, o.breakerChanged)
	return o
}

func (o *Orchestrator) breakerChanged(provider string, from, to resilience.CircuitState) {
	zap.L().Info("orchestrator: circuit state changed",
		zap.String("provider", provider),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
	o.metrics.ObserveBreaker(provider, to.String())
}

// BreakerStates returns the circuit state of every registered adapter.
func (o *Orchestrator) BreakerStates() map[string]resilience.CircuitState {
	out := make(map[string]resilience.CircuitState)
	for _, name := range o.registry.List() {
		out[name] = o.breakers.Get(name).State()
	}
	return out
}

type fetchResult struct {
	provider string
	results  []model.RawResult
	err      error
	attempts int
	latency  time.Duration
}

// Run dispatches q to every registered adapter and waits until all of them
// report or deadline passes, whichever comes first. It never returns an
// error: adapter failures are expressed in the reports.
func (o *Orchestrator) Run(ctx context.Context, q model.CanonicalQuery, deadline time.Time) *Outcome {
	return o.RunObserved(ctx, q, deadline, nil)
}

// RunObserved is Run with a per-call callback invoked as each report is
// finalized, in addition to any hook set with WithStatusHook.
func (o *Orchestrator) RunObserved(ctx context.Context, q model.CanonicalQuery, deadline time.Time, observe func(model.ProviderStatusReport)) *Outcome {
	adapters := o.registry.Adapters()
	out := &Outcome{Reports: make([]model.ProviderStatusReport, 0, len(adapters))}

	parent := ctx
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	start := o.now()
	done := make(chan fetchResult, len(adapters))
	inflight := make(map[string]bool, len(adapters))
	results := make(map[string][]model.RawResult, len(adapters))

	for _, a := range adapters {
		name := a.Name()
		if err := o.breakers.Get(name).Allow(); err != nil {
			o.finish(out, observe, model.ProviderStatusReport{
				Provider: name,
				Status:   model.StatusSkippedCircuitOpen,
				Message:  "circuit open",
			})
			continue
		}
		inflight[name] = true
		go o.fetch(ctx, a, q, deadline, done)
	}

collect:
	for len(inflight) > 0 {
		select {
		case r := <-done:
			delete(inflight, r.provider)
			o.settle(parent, deadline, r.provider, r.err)

			status := provider.Classify(r.err)
			report := model.ProviderStatusReport{
				Provider: r.provider,
				Status:   status,
				Latency:  r.latency,
				Attempts: r.attempts,
			}
			if r.err != nil {
				report.Message = shortMessage(r.err)
				zap.L().Warn("orchestrator: provider failed",
					zap.String("provider", r.provider),
					zap.String("status", string(status)),
					zap.Duration("latency", r.latency),
					zap.Error(r.err),
				)
			} else {
				report.ResultCount = len(r.results)
				results[r.provider] = r.results
			}
			o.finish(out, observe, report)
		case <-ctx.Done():
			break collect
		}
	}

	// Stragglers are cancelled through ctx; anything they send later is dropped.
	elapsed := o.now().Sub(start)
	msg := "deadline exceeded"
	if abandoned(parent, deadline) {
		msg = "request cancelled"
	}
	for name := range inflight {
		o.settle(parent, deadline, name, context.DeadlineExceeded)
		o.finish(out, observe, model.ProviderStatusReport{
			Provider: name,
			Status:   model.StatusTimedOut,
			Latency:  elapsed,
			Attempts: 1,
			Message:  msg,
		})
	}

	sort.Slice(out.Reports, func(i, j int) bool {
		return out.Reports[i].Provider < out.Reports[j].Provider
	})
	for _, r := range out.Reports {
		out.Results = append(out.Results, results[r.Provider]...)
	}
	return out
}

// settle feeds a provider outcome to its breaker. A failure caused by the
// caller going away before the session deadline is not the provider's fault
// and only frees the half-open slot.
func (o *Orchestrator) settle(parent context.Context, deadline time.Time, name string, err error) {
	cb := o.breakers.Get(name)
	if err != nil && abandoned(parent, deadline) {
		cb.Release()
		return
	}
	cb.Record(err)
}

// abandoned reports whether the caller's context ended while the session
// deadline still had time left.
func abandoned(parent context.Context, deadline time.Time) bool {
	return parent.Err() != nil && time.Now().Before(deadline)
}

func (o *Orchestrator) finish(out *Outcome, observe func(model.ProviderStatusReport), r model.ProviderStatusReport) {
	out.Reports = append(out.Reports, r)
	o.metrics.ObserveProvider(r.Provider, string(r.Status), r.Latency, r.Status == model.StatusSkippedCircuitOpen)
	if o.onStatus != nil {
		o.onStatus(r)
	}
	if observe != nil {
		observe(r)
	}
}

// fetch runs one adapter with the single rate-limit retry and sends exactly
// one result on done.
func (o *Orchestrator) fetch(ctx context.Context, a provider.Adapter, q model.CanonicalQuery, deadline time.Time, done chan<- fetchResult) {
	name := a.Name()
	start := o.now()
	res := fetchResult{provider: name}

	ctx, span := o.tracer.Start(ctx, "provider.fetch", trace.WithAttributes(
		attribute.String("provider", name),
	))
	defer func() {
		if p := recover(); p != nil {
			res.results = nil
			res.err = eris.Errorf("adapter panic: %v", p)
			zap.L().Error("orchestrator: adapter panicked",
				zap.String("provider", name),
				zap.Any("panic", p),
			)
		}
		res.latency = o.now().Sub(start)
		status := provider.Classify(res.err)
		span.SetAttributes(
			attribute.String("outcome", string(status)),
			attribute.Int("results", len(res.results)),
			attribute.Int("attempts", res.attempts),
		)
		if res.err != nil {
			span.RecordError(res.err)
			span.SetStatus(codes.Error, string(status))
		}
		span.End()
		done <- res
	}()

	retry := resilience.RateLimitRetryConfig(deadline)
	retry.OnRetry = resilience.RetryLogger(name, "fetch")
	res.results, res.err = resilience.DoVal(ctx, retry, func(ctx context.Context) ([]model.RawResult, error) {
		res.attempts++
		rs, err := a.Fetch(ctx, q, time.Until(deadline))
		if err != nil {
			return nil, err
		}
		for i := range rs {
			rs[i].Provider = name
		}
		return rs, nil
	})
	if res.err == nil && ctx.Err() != nil {
		// Adapter ignored cancellation and returned after the deadline.
		res.results, res.err = nil, ctx.Err()
	}
}

func shortMessage(err error) string {
	return runewidth.Truncate(redact.String(err.Error()), maxMessageLen, "...")
}
