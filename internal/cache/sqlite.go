package cache

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // driver
)

// SQLite stores entries in a local SQLite database.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path, configures WAL mode
// and creates the cache table.
func NewSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	s := &SQLite{db: db, now: time.Now}
	if err := s.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sourcing_cache (
	cache_key  TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	stored_at  INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sourcing_cache_expires_at ON sourcing_cache(expires_at);
`

// Migrate creates the cache table if needed.
func (s *SQLite) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Get implements Cache.
func (s *SQLite) Get(ctx context.Context, key string) (*Entry, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM sourcing_cache WHERE cache_key = ? AND expires_at > ?`,
		key, s.now().UnixNano(),
	)
	var payload string
	err := row.Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("sqlite", "get", err)
	}
	e, err := decode([]byte(payload))
	if err != nil {
		return nil, false, unavailable("sqlite", "decode", err)
	}
	return e, true, nil
}

// Set implements Cache.
func (s *SQLite) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	payload, err := encode(entry)
	if err != nil {
		return unavailable("sqlite", "encode", err)
	}
	now := s.now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sourcing_cache (cache_key, payload, stored_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (cache_key) DO UPDATE SET payload = excluded.payload, stored_at = excluded.stored_at, expires_at = excluded.expires_at`,
		key, string(payload), now.UnixNano(), now.Add(ttl).UnixNano(),
	)
	if err != nil {
		return unavailable("sqlite", "set", err)
	}
	return nil
}

// DeleteExpired removes expired rows and returns how many were deleted.
func (s *SQLite) DeleteExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sourcing_cache WHERE expires_at <= ?`, s.now().UnixNano(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// Close implements Cache.
func (s *SQLite) Close() error { return s.db.Close() }

