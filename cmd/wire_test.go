package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/offer-sourcing/internal/api"
	"github.com/sells-group/offer-sourcing/internal/audit"
	"github.com/sells-group/offer-sourcing/internal/cache"
	"github.com/sells-group/offer-sourcing/internal/config"
	"github.com/sells-group/offer-sourcing/internal/model"
	"github.com/sells-group/offer-sourcing/internal/sourcing"
)

func testConfig() *config.Config {
	c := &config.Config{}
	c.Server.Port = 8080
	c.Sourcing.Deadline = 2 * time.Second
	c.Sourcing.BaseCurrency = "USD"
	c.Cache.Driver = "memory"
	c.Cache.TTL = time.Minute
	c.Breaker.FailureThreshold = 3
	c.Breaker.Cooldown = 30 * time.Second
	c.Dedup.TitleSimilarity = 0.9
	c.Dedup.PriceTolerance = 0.03
	c.Scoring.RelevanceWeight = 0.5
	c.Scoring.ConstraintWeight = 0.4
	c.Scoring.TrustWeight = 0.1
	c.Scoring.PriceTolerance = 0.1
	c.Audit.Driver = "none"
	c.Providers.Demo.Enabled = true
	c.Providers.Demo.TrustTier = 1
	c.Providers.Demo.Count = 4
	return c
}

func TestBuildRegistry(t *testing.T) {
	pc := testConfig().Providers
	pc.Rainforest.Enabled = true
	pc.Rainforest.APIKey = "k"
	pc.Rainforest.TrustTier = 2
	pc.Rainforest.RateLimit = 2
	pc.Ebay.Enabled = true
	pc.Ebay.ClientID, pc.Ebay.ClientSecret = "id", "secret"
	pc.Shopping.Enabled = false
	pc.Catalog.Enabled = true
	pc.Catalog.Addresses = []string{"http://localhost:9200"}
	pc.Catalog.TrustTier = 3

	reg, err := buildRegistry(pc)
	require.NoError(t, err)

	assert.Equal(t, []string{"catalog", "demo", "ebay", "rainforest"}, reg.List())
	assert.Equal(t, map[string]int{"catalog": 3, "demo": 1, "ebay": 0, "rainforest": 2}, reg.TrustTiers())
}

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, newLimiter("x", config.ProviderCommon{}))

	l := newLimiter("x", config.ProviderCommon{RateLimit: 4})
	require.NotNil(t, l)
	assert.InDelta(t, 4.0, float64(l.Limit()), 0.001)
}

func TestNormalizeConfig_AliasFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aliases.yaml")
	require.NoError(t, os.WriteFile(path, []byte("aliases:\n  Shop.Example.co.uk: example.com\n"), 0644))

	c := testConfig()
	c.Normalize.AliasFile = path
	c.Normalize.MerchantAliases = map[string]string{"outlet": "example.net"}

	nc, err := normalizeConfig(c, map[string]int{"demo": 1})
	require.NoError(t, err)

	assert.Equal(t, "example.com", nc.MerchantAliases["shop.example.co.uk"])
	assert.Equal(t, "example.net", nc.MerchantAliases["outlet"])
	assert.Equal(t, "USD", nc.BaseCurrency)
	assert.Equal(t, 1, nc.TrustTiers["demo"])
	// Built-in aliases survive.
	assert.GreaterOrEqual(t, len(nc.MerchantAliases), 3)

	c.Normalize.AliasFile = filepath.Join(dir, "missing.yaml")
	_, err = normalizeConfig(c, nil)
	assert.Error(t, err)
}

func TestOpenCache(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	mr := miniredis.RunT(t)

	tests := []struct {
		name string
		cc   config.CacheConfig
		want any
	}{
		{"memory", config.CacheConfig{Driver: "memory"}, &cache.Memory{}},
		{"none", config.CacheConfig{Driver: "none"}, cache.Nop{}},
		{"redis", config.CacheConfig{Driver: "redis", Redis: config.RedisConfig{Addr: mr.Addr()}}, &cache.Redis{}},
		{"sqlite", config.CacheConfig{Driver: "sqlite", SQLite: config.PathConfig{Path: filepath.Join(dir, "c.db")}}, &cache.SQLite{}},
		{"leveldb", config.CacheConfig{Driver: "leveldb", LevelDB: config.PathConfig{Path: filepath.Join(dir, "c.ldb")}}, &cache.LevelDB{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := openCache(ctx, tt.cc)
			require.NoError(t, err)
			t.Cleanup(func() { _ = c.Close() })
			assert.IsType(t, tt.want, c)
		})
	}

	_, err := openCache(ctx, config.CacheConfig{Driver: "memcached"})
	assert.Error(t, err)
}

func TestOpenAudit(t *testing.T) {
	ctx := context.Background()

	sink, closeFn, err := openAudit(ctx, config.AuditConfig{Driver: "none"})
	require.NoError(t, err)
	assert.IsType(t, audit.Nop{}, sink)
	closeFn()

	sink, closeFn, err = openAudit(ctx, config.AuditConfig{Driver: "log"})
	require.NoError(t, err)
	assert.IsType(t, &audit.LogSink{}, sink)
	closeFn()

	_, _, err = openAudit(ctx, config.AuditConfig{Driver: "postgres", DatabaseURL: "postgres://u:p@localhost:notaport/db"})
	assert.Error(t, err)

	_, _, err = openAudit(ctx, config.AuditConfig{Driver: "kafka"})
	assert.Error(t, err)
}

func TestInitSourcing_DemoEndToEnd(t *testing.T) {
	env, err := initSourcing(context.Background(), testConfig())
	require.NoError(t, err)
	defer env.Close()

	q, err := model.NewCanonicalQuery("usb c hub", "", model.Constraints{MaxPrice: model.Float(500)})
	require.NoError(t, err)

	first, err := env.Engine.Search(context.Background(), q, sourcing.Options{})
	require.NoError(t, err)
	require.Len(t, first.ProviderStatus, 1)
	assert.Equal(t, model.StatusSucceeded, first.ProviderStatus[0].Status)
	assert.NotEmpty(t, first.Offers)
	assert.False(t, first.ServedFromCache)

	second, err := env.Engine.Search(context.Background(), q, sourcing.Options{})
	require.NoError(t, err)
	assert.True(t, second.ServedFromCache)
	assert.Equal(t, first.SessionID, second.SessionID)

	families, err := env.Metrics.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestInitSourcing_InvalidConfig(t *testing.T) {
	c := testConfig()
	c.Cache.Driver = "bogus"

	_, err := initSourcing(context.Background(), c)
	assert.Error(t, err)
}

func TestRenderProviders(t *testing.T) {
	infos := []api.ProviderInfo{
		{Name: "catalog", TrustTier: 3, Breaker: "closed"},
		{Name: "ebay", TrustTier: 1, Breaker: "open"},
	}

	var buf bytes.Buffer
	require.NoError(t, renderProviders(&buf, infos, false))
	assert.Contains(t, buf.String(), "| catalog  | 3          | closed  |")

	buf.Reset()
	require.NoError(t, renderProviders(&buf, infos, true))
	assert.Contains(t, buf.String(), `"trust_tier": 3`)

	buf.Reset()
	require.NoError(t, renderProviders(&buf, nil, false))
	assert.Equal(t, "no providers enabled\n", buf.String())
}
