// Package audit retains redacted raw provider payloads for later review.
// Sinks are best effort: callers log failures and move on.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/offer-sourcing/internal/db"
	"github.com/sells-group/offer-sourcing/internal/model"
	"github.com/sells-group/offer-sourcing/internal/redact"
)

// Sink records the raw results of one session.
type Sink interface {
	Record(ctx context.Context, sessionID, cacheKey string, results []model.RawResult) error
}

// Nop discards everything.
type Nop struct{}

// Record implements Sink.
func (Nop) Record(context.Context, string, string, []model.RawResult) error { return nil }

// LogSink writes each raw result at debug level.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink creates a sink on log, or on the global logger when nil.
func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.L()
	}
	return &LogSink{log: log}
}

// Record implements Sink.
func (s *LogSink) Record(_ context.Context, sessionID, cacheKey string, results []model.RawResult) error {
	for _, r := range results {
		s.log.Debug("audit: raw result",
			zap.String("session_id", sessionID),
			zap.String("cache_key", cacheKey),
			zap.String("provider", r.Provider),
			zap.String("title", r.Title),
			zap.String("url", redact.String(r.URL)),
			zap.Any("payload", redact.Map(r.Payload)),
		)
	}
	return nil
}

const auditTable = "sourcing_audit"

var auditColumns = []string{"session_id", "cache_key", "provider", "title", "url", "payload", "recorded_at"}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sourcing_audit (
	id          BIGSERIAL PRIMARY KEY,
	session_id  TEXT NOT NULL,
	cache_key   TEXT NOT NULL,
	provider    TEXT NOT NULL,
	title       TEXT NOT NULL,
	url         TEXT,
	payload     JSONB,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sourcing_audit_session ON sourcing_audit(session_id);
CREATE INDEX IF NOT EXISTS idx_sourcing_audit_recorded_at ON sourcing_audit(recorded_at);
`

// PostgresSink copies one row per raw result into sourcing_audit.
type PostgresSink struct {
	pool db.Pool
	now  func() time.Time
}

// NewPostgresSink wraps an open pool.
func NewPostgresSink(pool db.Pool) *PostgresSink {
	return &PostgresSink{pool: pool, now: time.Now}
}

// Migrate creates the audit table if needed.
func (s *PostgresSink) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "audit: migrate")
}

// Record implements Sink.
func (s *PostgresSink) Record(ctx context.Context, sessionID, cacheKey string, results []model.RawResult) error {
	if len(results) == 0 {
		return nil
	}
	now := s.now().UTC()
	rows := make([][]any, 0, len(results))
	for _, r := range results {
		payload, err := json.Marshal(redact.Map(r.Payload))
		if err != nil {
			return eris.Wrapf(err, "audit: marshal payload for %s", r.Provider)
		}
		rows = append(rows, []any{sessionID, cacheKey, r.Provider, r.Title, redact.String(r.URL), payload, now})
	}
	if _, err := db.CopyFrom(ctx, s.pool, auditTable, auditColumns, rows); err != nil {
		return eris.Wrap(err, "audit: record")
	}
	return nil
}

// Close releases the pool.
func (s *PostgresSink) Close() {
	s.pool.Close()
}
