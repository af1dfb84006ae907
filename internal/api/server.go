// Package api exposes the sourcing engine over HTTP.
package api

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/sells-group/offer-sourcing/internal/model"
	"github.com/sells-group/offer-sourcing/internal/resilience"
	"github.com/sells-group/offer-sourcing/internal/sourcing"
)

const maxBodyBytes = 1 << 20

//go:embed search_request.schema.json
var searchSchema string

var searchSchemaLoader = gojsonschema.NewStringLoader(searchSchema)

// Searcher runs a canonical query.
type Searcher interface {
	Search(ctx context.Context, q model.CanonicalQuery, opts sourcing.Options) (*model.SourcingResult, error)
}

// BreakerSource reports circuit breaker state per provider.
type BreakerSource interface {
	BreakerStates() map[string]resilience.CircuitState
}

// ProviderInfo describes one configured adapter.
type ProviderInfo struct {
	Name      string `json:"name"`
	TrustTier int    `json:"trust_tier"`
	Breaker   string `json:"breaker"`
}

// DescribeProviders joins trust tiers with breaker states, sorted by name.
func DescribeProviders(tiers map[string]int, breakers BreakerSource) []ProviderInfo {
	var states map[string]resilience.CircuitState
	if breakers != nil {
		states = breakers.BreakerStates()
	}
	out := make([]ProviderInfo, 0, len(tiers))
	for name, tier := range tiers {
		state := resilience.CircuitClosed
		if s, ok := states[name]; ok {
			state = s
		}
		out = append(out, ProviderInfo{Name: name, TrustTier: tier, Breaker: state.String()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Deps are the collaborators the router serves.
type Deps struct {
	Engine         Searcher
	TrustTiers     map[string]int
	Breakers       BreakerSource
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
}

// searchRequest is the body of POST /v1/search.
type searchRequest struct {
	Phrase       string            `json:"phrase"`
	Category     string            `json:"category"`
	Constraints  model.Constraints `json:"constraints"`
	ForceRefresh bool              `json:"force_refresh"`
	DeadlineMS   int               `json:"deadline_ms"`
}

type server struct {
	deps Deps
}

// NewRouter builds the HTTP handler.
func NewRouter(deps Deps) http.Handler {
	s := &server{deps: deps}
	if s.deps.Gatherer == nil {
		s.deps.Gatherer = prometheus.DefaultGatherer
	}
	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	r.Route("/v1", func(r chi.Router) {
		r.Post("/search", s.search)
		r.Get("/providers", s.providers)
	})
	return r
}

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) providers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"providers": DescribeProviders(s.deps.TrustTiers, s.deps.Breakers),
	})
}

func (s *server) search(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	if problems, err := validateSearch(body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	} else if len(problems) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "request does not match schema",
			"details": problems,
		})
		return
	}

	var req searchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	q, err := model.NewCanonicalQuery(req.Phrase, req.Category, req.Constraints)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := sourcing.Options{
		ForceRefresh: req.ForceRefresh,
		Deadline:     time.Duration(req.DeadlineMS) * time.Millisecond,
	}
	res, err := s.deps.Engine.Search(r.Context(), q, opts)
	if err != nil {
		if errors.Is(err, model.ErrInvalidQuery) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		zap.L().Error("api: search failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// validateSearch returns schema violations, or an error when the body is not JSON.
func validateSearch(body []byte) ([]string, error) {
	result, err := gojsonschema.Validate(searchSchemaLoader, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, eris.Wrap(err, "api: validate search request")
	}
	if result.Valid() {
		return nil, nil
	}
	problems := make([]string, len(result.Errors()))
	for i, desc := range result.Errors() {
		problems[i] = desc.String()
	}
	return problems, nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if strings.HasPrefix(r.URL.Path, "/metrics") {
			return
		}
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
