package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func failN(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		if cb.Allow() == nil {
			cb.Record(errors.New("upstream 500"))
		}
	}
}

func streak(cb *CircuitBreaker) int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.consecutiveFailures
}

func TestCircuitBreaker_ClosedState_Admits(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	if err := cb.Allow(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cb.Record(nil)
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed state, got %s", cb.State())
	}
}

func TestCircuitBreaker_DefaultThresholdIsThree(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})

	failN(cb, 2)
	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed after 2 failures, got %s", cb.State())
	}
	failN(cb, 1)
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open after 3 failures, got %s", cb.State())
	}
}

func TestCircuitBreaker_OpenRejects(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})
	failN(cb, 3)

	if err := cb.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_SuccessResetsStreak(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})
	failN(cb, 2)
	if n := streak(cb); n != 2 {
		t.Fatalf("expected 2 failures, got %d", n)
	}

	cb.Record(nil)
	if n := streak(cb); n != 0 {
		t.Errorf("expected 0 consecutive failures after success, got %d", n)
	}
}

func TestCircuitBreaker_StaleFailuresDoNotAccumulate(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     time.Minute,
		Now:              clock.Now,
	})

	failN(cb, 2)
	clock.Advance(2 * time.Minute)
	failN(cb, 1)

	if n := streak(cb); n != 1 {
		t.Errorf("expected streak to restart at 1, got %d", n)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenAdmitsSingleProbe(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     100 * time.Millisecond,
		Now:              clock.Now,
	})
	failN(cb, 2)
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open state, got %s", cb.State())
	}

	clock.Advance(200 * time.Millisecond)
	if cb.State() != CircuitHalfOpen {
		t.Errorf("expected half-open after cooldown, got %s", cb.State())
	}

	if err := cb.Allow(); err != nil {
		t.Fatalf("first probe should be admitted: %v", err)
	}
	if err := cb.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("second concurrent probe should be rejected, got %v", err)
	}

	cb.Record(nil)
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after successful probe, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     100 * time.Millisecond,
		Now:              clock.Now,
	})
	failN(cb, 2)
	clock.Advance(200 * time.Millisecond)

	failN(cb, 1)

	if cb.State() != CircuitOpen {
		t.Errorf("expected open state after half-open failure, got %s", cb.State())
	}
	if n := streak(cb); n != 3 {
		t.Errorf("expected 3 total failures, got %d", n)
	}
	if err := cb.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected a fresh cooldown after failed probe, got %v", err)
	}
}

func TestCircuitBreaker_ReleaseFreesHalfOpenSlot(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		Now:              clock.Now,
	})
	failN(cb, 1)
	clock.Advance(2 * time.Minute)

	if err := cb.Allow(); err != nil {
		t.Fatalf("half-open call should be admitted: %v", err)
	}
	cb.Release()
	if s := cb.State(); s != CircuitHalfOpen {
		t.Fatalf("expected half-open after release, got %s", s)
	}
	if n := streak(cb); n != 1 {
		t.Errorf("release must not count a failure, got streak %d", n)
	}
	if err := cb.Allow(); err != nil {
		t.Errorf("expected a new half-open call after release, got %v", err)
	}

	// Release outside half-open is a no-op.
	closed := NewCircuitBreaker(DefaultCircuitBreakerConfig())
	closed.Release()
	if s := closed.State(); s != CircuitClosed {
		t.Errorf("expected closed, got %s", s)
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var transitions []struct{ from, to CircuitState }
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, struct{ from, to CircuitState }{from, to})
		},
	})
	failN(cb, 2)

	if len(transitions) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(transitions))
	}
	if transitions[0].from != CircuitClosed || transitions[0].to != CircuitOpen {
		t.Errorf("expected closed to open, got %s to %s", transitions[0].from, transitions[0].to)
	}
}

func TestCircuitBreaker_ConcurrentRecord(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1000, ResetTimeout: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cb.Record(errors.New("fail"))
		}()
	}
	wg.Wait()

	if n := streak(cb); n != 100 {
		t.Errorf("expected 100 failures, got %d", n)
	}
}

func TestServiceBreakers_GetOrCreate(t *testing.T) {
	sb := NewServiceBreakers(DefaultCircuitBreakerConfig(), nil)

	cb1 := sb.Get("rainforest")
	cb2 := sb.Get("rainforest")
	cb3 := sb.Get("ebay")

	if cb1 != cb2 {
		t.Error("expected same breaker for same provider")
	}
	if cb1 == cb3 {
		t.Error("expected different breakers for different providers")
	}
}

func TestServiceBreakers_TransitionHookNamesProvider(t *testing.T) {
	var got []string
	sb := NewServiceBreakers(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour},
		func(service string, from, to CircuitState) {
			got = append(got, service+":"+from.String()+"->"+to.String())
		})

	sb.Get("rainforest").Record(errors.New("fail"))
	sb.Get("ebay").Record(nil)

	if len(got) != 1 || got[0] != "rainforest:closed->open" {
		t.Errorf("unexpected transitions: %v", got)
	}
	if s := sb.Get("ebay").State(); s != CircuitClosed {
		t.Errorf("expected ebay=closed, got %s", s)
	}
}

func TestCircuitState_String(t *testing.T) {
	tests := []struct {
		state CircuitState
		want  string
	}{
		{CircuitClosed, "closed"},
		{CircuitOpen, "open"},
		{CircuitHalfOpen, "half-open"},
		{CircuitState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("CircuitState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestFromCircuitConfig(t *testing.T) {
	cfg := FromCircuitConfig(0, 0)
	if cfg.FailureThreshold != 3 || cfg.ResetTimeout != 30*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	cfg = FromCircuitConfig(5, time.Minute)
	if cfg.FailureThreshold != 5 || cfg.ResetTimeout != time.Minute {
		t.Errorf("unexpected overrides: %+v", cfg)
	}
}
