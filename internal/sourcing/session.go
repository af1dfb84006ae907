package sourcing

import (
	"sync"
	"time"

	"github.com/sells-group/offer-sourcing/internal/model"
)

// State is the lifecycle stage of a session.
type State string

const (
	StateDispatched State = "dispatched"
	StatePartial    State = "partial"
	StateComplete   State = "complete"
)

// Session is one live query execution. It is discarded once its result has
// been returned and cached.
type Session struct {
	ID        string
	Query     model.CanonicalQuery
	CacheKey  string
	CreatedAt time.Time
	Deadline  time.Time

	mu       sync.Mutex
	state    State
	reported int
}

func newSession(id string, q model.CanonicalQuery, createdAt, deadline time.Time) *Session {
	return &Session{
		ID:        id,
		Query:     q,
		CacheKey:  q.CacheKey(),
		CreatedAt: createdAt,
		Deadline:  deadline,
		state:     StateDispatched,
	}
}

// State returns the current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reported returns how many provider reports have arrived.
func (s *Session) Reported() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reported
}

func (s *Session) observe(model.ProviderStatusReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reported++
	if s.state == StateDispatched {
		s.state = StatePartial
	}
}

func (s *Session) complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateComplete
}
