package cache

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/offer-sourcing/internal/model"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type backend struct {
	name    string
	cache   Cache
	advance func(d time.Duration)
}

func backends(t *testing.T) []backend {
	t.Helper()
	var out []backend

	memClock := &testClock{now: time.Unix(1_700_000_000, 0)}
	out = append(out, backend{"memory", NewMemory().WithClock(memClock.Now), memClock.Advance})

	mr := miniredis.RunT(t)
	rc := NewRedisWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { rc.Close() }) //nolint:errcheck
	out = append(out, backend{"redis", rc, mr.FastForward})

	sqlClock := &testClock{now: time.Unix(1_700_000_000, 0)}
	sq, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	sq.now = sqlClock.Now
	t.Cleanup(func() { sq.Close() }) //nolint:errcheck
	out = append(out, backend{"sqlite", sq, sqlClock.Advance})

	ldbClock := &testClock{now: time.Unix(1_700_000_000, 0)}
	ldb, err := NewLevelDB(filepath.Join(t.TempDir(), "cache.ldb"))
	require.NoError(t, err)
	ldb.now = ldbClock.Now
	t.Cleanup(func() { ldb.Close() }) //nolint:errcheck
	out = append(out, backend{"leveldb", ldb, ldbClock.Advance})

	return out
}

func sampleEntry() Entry {
	return Entry{
		Result: model.SourcingResult{
			SessionID: "s-1",
			CacheKey:  "k",
			Offers: []model.NormalizedOffer{
				{Key: "a", Title: "Mug", Merchant: "shop.com", PriceMinor: 1999, Currency: "USD", Provenance: []string{"p1", "p2"}, Score: 0.8},
			},
			ProviderStatus: []model.ProviderStatusReport{
				{Provider: "p1", Status: model.StatusSucceeded, Latency: 120 * time.Millisecond, ResultCount: 1},
				{Provider: "p2", Status: model.StatusTimedOut},
			},
		},
		StoredAt: time.Unix(1_700_000_000, 0).UTC(),
	}
}

func TestBackends_RoundTrip(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			want := sampleEntry()
			require.NoError(t, b.cache.Set(ctx, "k", want, 5*time.Minute))

			got, ok, err := b.cache.Get(ctx, "k")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, want.Result.Offers, got.Result.Offers)
			assert.Equal(t, want.Result.ProviderStatus, got.Result.ProviderStatus)
			assert.True(t, want.StoredAt.Equal(got.StoredAt))
		})
	}
}

func TestBackends_Miss(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			got, ok, err := b.cache.Get(context.Background(), "absent")
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Nil(t, got)
		})
	}
}

func TestBackends_Expiry(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, b.cache.Set(ctx, "k", sampleEntry(), time.Minute))

			b.advance(30 * time.Second)
			_, ok, err := b.cache.Get(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)

			b.advance(31 * time.Second)
			_, ok, err = b.cache.Get(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestBackends_LastWriterWins(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			first := sampleEntry()
			second := sampleEntry()
			second.Result.SessionID = "s-2"

			require.NoError(t, b.cache.Set(ctx, "k", first, time.Minute))
			require.NoError(t, b.cache.Set(ctx, "k", second, time.Minute))

			got, ok, err := b.cache.Get(ctx, "k")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "s-2", got.Result.SessionID)
		})
	}
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Set(ctx, "k", sampleEntry(), time.Minute))

	got, _, err := m.Get(ctx, "k")
	require.NoError(t, err)
	got.Result.Offers[0].Title = "mutated"

	again, _, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "Mug", again.Result.Offers[0].Title)
}

func TestRedis_Unavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rc := NewRedisWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer rc.Close() //nolint:errcheck
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, ok, err := rc.Get(ctx, "k")
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, IsUnavailable(err))
	assert.ErrorIs(t, rc.Set(ctx, "k", sampleEntry(), time.Minute), ErrCacheUnavailable)
}

func TestRedis_SetError(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := NewRedisWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer rc.Close() //nolint:errcheck
	mr.SetError("READONLY")

	err := rc.Set(context.Background(), "k", sampleEntry(), time.Minute)
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}

func TestSQLite_DeleteExpired(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	sq, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer sq.Close() //nolint:errcheck
	sq.now = clock.Now

	ctx := context.Background()
	require.NoError(t, sq.Set(ctx, "a", sampleEntry(), time.Minute))
	require.NoError(t, sq.Set(ctx, "b", sampleEntry(), time.Hour))
	clock.Advance(2 * time.Minute)

	n, err := sq.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUnavailableError(t *testing.T) {
	base := errors.New("connection refused")
	err := unavailable("redis", "get", base)
	assert.ErrorIs(t, err, ErrCacheUnavailable)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "cache redis: get: connection refused", err.Error())
}

func TestNop(t *testing.T) {
	var c Cache = Nop{}
	require.NoError(t, c.Set(context.Background(), "k", sampleEntry(), time.Minute))
	_, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.Close())
}
