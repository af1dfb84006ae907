package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/offer-sourcing/internal/adapters"
	"github.com/sells-group/offer-sourcing/internal/audit"
	"github.com/sells-group/offer-sourcing/internal/cache"
	"github.com/sells-group/offer-sourcing/internal/config"
	"github.com/sells-group/offer-sourcing/internal/db"
	"github.com/sells-group/offer-sourcing/internal/dedup"
	"github.com/sells-group/offer-sourcing/internal/fetcher"
	"github.com/sells-group/offer-sourcing/internal/metrics"
	"github.com/sells-group/offer-sourcing/internal/normalize"
	"github.com/sells-group/offer-sourcing/internal/orchestrator"
	"github.com/sells-group/offer-sourcing/internal/provider"
	"github.com/sells-group/offer-sourcing/internal/scorer"
	"github.com/sells-group/offer-sourcing/internal/sourcing"
	"github.com/sells-group/offer-sourcing/pkg/ebay"
	"github.com/sells-group/offer-sourcing/pkg/rainforest"
	"github.com/sells-group/offer-sourcing/pkg/searchapi"
)

// sourcingEnv holds the engine and everything it was built from, for the
// search/serve/providers commands.
type sourcingEnv struct {
	Engine       *sourcing.Engine
	Orchestrator *orchestrator.Orchestrator
	Registry     *provider.Registry
	Metrics      *prometheus.Registry

	closers []func()
}

// Close releases the cache and audit backends.
func (se *sourcingEnv) Close() {
	for i := len(se.closers) - 1; i >= 0; i-- {
		se.closers[i]()
	}
}

// initSourcing validates c and builds the engine. Callers should defer
// env.Close().
func initSourcing(ctx context.Context, c *config.Config) (*sourcingEnv, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	reg, err := buildRegistry(c.Providers)
	if err != nil {
		return nil, err
	}
	if len(reg.List()) == 0 {
		zap.L().Warn("no providers enabled; set SOURCING_PROVIDERS_DEMO_ENABLED=true for offline use")
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	orch := orchestrator.New(reg, orchestrator.Config{
		FailureThreshold: c.Breaker.FailureThreshold,
		Cooldown:         c.Breaker.Cooldown,
	}, orchestrator.WithMetrics(m))

	normCfg, err := normalizeConfig(c, reg.TrustTiers())
	if err != nil {
		return nil, err
	}

	sc, err := scorer.New(scorerConfig(c))
	if err != nil {
		return nil, eris.Wrap(err, "scorer config")
	}

	env := &sourcingEnv{
		Orchestrator: orch,
		Registry:     reg,
		Metrics:      promReg,
	}

	store, err := openCache(ctx, c.Cache)
	if err != nil {
		return nil, err
	}
	env.closers = append(env.closers, func() { _ = store.Close() })

	sink, closeSink, err := openAudit(ctx, c.Audit)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.closers = append(env.closers, closeSink)

	env.Engine = sourcing.New(sourcing.Config{
		Deadline: c.Sourcing.Deadline,
		CacheTTL: c.Cache.TTL,
		Dedup: dedup.Config{
			TitleSimilarity: c.Dedup.TitleSimilarity,
			PriceTolerance:  c.Dedup.PriceTolerance,
		},
	}, orch, normalize.New(normCfg), sc,
		sourcing.WithCache(store),
		sourcing.WithAudit(sink),
		sourcing.WithMetrics(m),
	)

	zap.L().Info("sourcing engine ready",
		zap.Strings("providers", reg.List()),
		zap.String("cache", c.Cache.Driver),
		zap.String("audit", c.Audit.Driver),
	)
	return env, nil
}

// buildRegistry registers every enabled adapter with its own limiter.
func buildRegistry(pc config.ProvidersConfig) (*provider.Registry, error) {
	reg := provider.NewRegistry()

	if rf := pc.Rainforest; rf.Enabled {
		client := rainforest.NewClient(rf.APIKey, rainforest.WithBaseURL(rf.BaseURL))
		reg.Register(adapters.NewRainforest(client, newLimiter(adapters.RainforestName, rf.ProviderCommon), rf.AmazonDomain), rf.TrustTier)
	}

	if eb := pc.Ebay; eb.Enabled {
		opts := []ebay.Option{ebay.WithBaseURL(eb.BaseURL)}
		if eb.Marketplace != "" {
			opts = append(opts, ebay.WithMarketplace(eb.Marketplace))
		}
		client := ebay.NewClient(eb.ClientID, eb.ClientSecret, opts...)
		reg.Register(adapters.NewEbay(client, newLimiter(adapters.EbayName, eb.ProviderCommon), eb.Limit), eb.TrustTier)
	}

	if sh := pc.Shopping; sh.Enabled {
		client := searchapi.NewClient(sh.APIKey, searchapi.WithBaseURL(sh.BaseURL))
		reg.Register(adapters.NewShopping(client, newLimiter(adapters.ShoppingName, sh.ProviderCommon), sh.Country, sh.Language), sh.TrustTier)
	}

	if ct := pc.Catalog; ct.Enabled {
		cat, err := adapters.NewCatalog(adapters.CatalogConfig{
			Addresses: ct.Addresses,
			Username:  ct.Username,
			Password:  ct.Password,
			Index:     ct.Index,
			Size:      ct.Size,
		})
		if err != nil {
			return nil, err
		}
		reg.Register(cat, ct.TrustTier)
	}

	if d := pc.Demo; d.Enabled {
		reg.Register(adapters.NewDemo(d.Count, d.Latency), d.TrustTier)
	}

	return reg, nil
}

// newLimiter returns nil when no rate is configured.
func newLimiter(name string, pc config.ProviderCommon) *fetcher.AdaptiveLimiter {
	if pc.RateLimit <= 0 {
		return nil
	}
	burst := pc.Burst
	if burst < 1 {
		burst = 1
	}
	return fetcher.NewAdaptiveLimiter(name, rate.Limit(pc.RateLimit), burst)
}

func normalizeConfig(c *config.Config, tiers map[string]int) (normalize.Config, error) {
	nc := c.Normalize
	aliases := []map[string]string{normalize.DefaultMerchantAliases, nc.MerchantAliases}
	if nc.AliasFile != "" {
		fromFile, err := normalize.LoadAliases(nc.AliasFile)
		if err != nil {
			return normalize.Config{}, err
		}
		aliases = append(aliases, fromFile)
	}

	return normalize.Config{
		BaseCurrency:     c.Sourcing.BaseCurrency,
		TrackingParams:   nc.TrackingParams,
		TrackingPrefixes: nc.TrackingPrefixes,
		MerchantAliases:  normalize.MergeAliases(aliases...),
		FXRates:          nc.FXRates,
		TrustTiers:       tiers,
	}, nil
}

func scorerConfig(c *config.Config) scorer.Config {
	return scorer.Config{
		Weights: scorer.Weights{
			Relevance:   c.Scoring.RelevanceWeight,
			Constraints: c.Scoring.ConstraintWeight,
			Trust:       c.Scoring.TrustWeight,
		},
		PriceTolerance: c.Scoring.PriceTolerance,
		Currency:       c.Sourcing.BaseCurrency,
	}
}

func openCache(ctx context.Context, cc config.CacheConfig) (cache.Cache, error) {
	switch cc.Driver {
	case "memory":
		return cache.NewMemory(), nil
	case "redis":
		r := cache.NewRedis(cache.RedisConfig{
			Addr:     cc.Redis.Addr,
			Password: cc.Redis.Password,
			DB:       cc.Redis.DB,
		})
		// An unreachable Redis is not fatal; lookups degrade to misses.
		if err := r.Ping(ctx); err != nil {
			zap.L().Warn("redis cache unreachable at startup", zap.String("addr", cc.Redis.Addr), zap.Error(err))
		}
		return r, nil
	case "sqlite":
		s, err := cache.NewSQLite(ctx, cc.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "leveldb":
		l, err := cache.NewLevelDB(cc.LevelDB.Path)
		if err != nil {
			return nil, err
		}
		return l, nil
	case "none", "":
		return cache.Nop{}, nil
	default:
		return nil, eris.Errorf("unsupported cache driver: %s", cc.Driver)
	}
}

func openAudit(ctx context.Context, ac config.AuditConfig) (audit.Sink, func(), error) {
	switch ac.Driver {
	case "none", "":
		return audit.Nop{}, func() {}, nil
	case "log":
		return audit.NewLogSink(zap.L()), func() {}, nil
	case "postgres":
		pool, err := db.NewPool(ctx, ac.DatabaseURL, &db.PoolConfig{MaxConns: ac.MaxConns})
		if err != nil {
			return nil, nil, err
		}
		sink := audit.NewPostgresSink(pool)
		if err := sink.Migrate(ctx); err != nil {
			sink.Close()
			return nil, nil, eris.Wrap(err, "migrate audit table")
		}
		return sink, sink.Close, nil
	default:
		return nil, nil, eris.Errorf("unsupported audit driver: %s", ac.Driver)
	}
}
