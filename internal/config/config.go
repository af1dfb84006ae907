package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Sourcing  SourcingConfig  `yaml:"sourcing" mapstructure:"sourcing"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Breaker   BreakerConfig   `yaml:"breaker" mapstructure:"breaker"`
	Dedup     DedupConfig     `yaml:"dedup" mapstructure:"dedup"`
	Scoring   ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	Normalize NormalizeConfig `yaml:"normalize" mapstructure:"normalize"`
	Providers ProvidersConfig `yaml:"providers" mapstructure:"providers"`
	Audit     AuditConfig     `yaml:"audit" mapstructure:"audit"`
}

// SourcingConfig configures session-wide behavior.
type SourcingConfig struct {
	Deadline     time.Duration `yaml:"deadline" mapstructure:"deadline"`
	BaseCurrency string        `yaml:"base_currency" mapstructure:"base_currency"`
}

// CacheConfig selects and configures the result cache backend.
type CacheConfig struct {
	Driver  string        `yaml:"driver" mapstructure:"driver"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
	Redis   RedisConfig   `yaml:"redis" mapstructure:"redis"`
	SQLite  PathConfig    `yaml:"sqlite" mapstructure:"sqlite"`
	LevelDB PathConfig    `yaml:"leveldb" mapstructure:"leveldb"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// PathConfig points a file-backed store at its location.
type PathConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// BreakerConfig configures the per-provider circuit breakers.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown" mapstructure:"cooldown"`
}

// DedupConfig holds the soft-duplicate thresholds.
type DedupConfig struct {
	TitleSimilarity float64 `yaml:"title_similarity" mapstructure:"title_similarity"`
	PriceTolerance  float64 `yaml:"price_tolerance" mapstructure:"price_tolerance"`
}

// ScoringConfig holds the match score weights.
type ScoringConfig struct {
	RelevanceWeight  float64 `yaml:"relevance_weight" mapstructure:"relevance_weight"`
	ConstraintWeight float64 `yaml:"constraint_weight" mapstructure:"constraint_weight"`
	TrustWeight      float64 `yaml:"trust_weight" mapstructure:"trust_weight"`
	PriceTolerance   float64 `yaml:"price_tolerance" mapstructure:"price_tolerance"`
}

// NormalizeConfig overrides the normalizer's static tables. Empty values
// keep the built-in defaults.
//
// Viper splits keys on dots, so merchant hosts such as "amazon.co.uk" must be
// listed in AliasFile rather than inline.
type NormalizeConfig struct {
	TrackingParams   []string           `yaml:"tracking_params" mapstructure:"tracking_params"`
	TrackingPrefixes []string           `yaml:"tracking_prefixes" mapstructure:"tracking_prefixes"`
	MerchantAliases  map[string]string  `yaml:"merchant_aliases" mapstructure:"merchant_aliases"`
	AliasFile        string             `yaml:"alias_file" mapstructure:"alias_file"`
	FXRates          map[string]float64 `yaml:"fx_rates" mapstructure:"fx_rates"`
}

// ProvidersConfig configures each adapter.
type ProvidersConfig struct {
	Rainforest RainforestConfig `yaml:"rainforest" mapstructure:"rainforest"`
	Ebay       EbayConfig       `yaml:"ebay" mapstructure:"ebay"`
	Shopping   ShoppingConfig   `yaml:"shopping" mapstructure:"shopping"`
	Catalog    CatalogConfig    `yaml:"catalog" mapstructure:"catalog"`
	Demo       DemoConfig       `yaml:"demo" mapstructure:"demo"`
}

// ProviderCommon holds the settings every adapter shares.
type ProviderCommon struct {
	Enabled   bool    `yaml:"enabled" mapstructure:"enabled"`
	TrustTier int     `yaml:"trust_tier" mapstructure:"trust_tier"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst     int     `yaml:"burst" mapstructure:"burst"`
}

// RainforestConfig configures the Amazon search adapter.
type RainforestConfig struct {
	ProviderCommon `yaml:",inline" mapstructure:",squash"`
	APIKey         string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	AmazonDomain   string `yaml:"amazon_domain" mapstructure:"amazon_domain"`
}

// EbayConfig configures the eBay Browse adapter.
type EbayConfig struct {
	ProviderCommon `yaml:",inline" mapstructure:",squash"`
	ClientID       string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret   string `yaml:"client_secret" mapstructure:"client_secret"`
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	Marketplace    string `yaml:"marketplace" mapstructure:"marketplace"`
	Limit          int    `yaml:"limit" mapstructure:"limit"`
}

// ShoppingConfig configures the SearchAPI.io Google Shopping adapter.
type ShoppingConfig struct {
	ProviderCommon `yaml:",inline" mapstructure:",squash"`
	APIKey         string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	Country        string `yaml:"country" mapstructure:"country"`
	Language       string `yaml:"language" mapstructure:"language"`
}

// CatalogConfig configures the Elasticsearch vendor catalog adapter.
type CatalogConfig struct {
	ProviderCommon `yaml:",inline" mapstructure:",squash"`
	Addresses      []string `yaml:"addresses" mapstructure:"addresses"`
	Username       string   `yaml:"username" mapstructure:"username"`
	Password       string   `yaml:"password" mapstructure:"password"`
	Index          string   `yaml:"index" mapstructure:"index"`
	Size           int      `yaml:"size" mapstructure:"size"`
}

// DemoConfig configures the offline demo adapter.
type DemoConfig struct {
	ProviderCommon `yaml:",inline" mapstructure:",squash"`
	Count          int           `yaml:"count" mapstructure:"count"`
	Latency        time.Duration `yaml:"latency" mapstructure:"latency"`
}

// AuditConfig selects the raw payload sink.
type AuditConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	// Optional .env; variables already set in the environment win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SOURCING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("sourcing.deadline", "4s")
	v.SetDefault("sourcing.base_currency", "USD")

	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.sqlite.path", "sourcing-cache.db")
	v.SetDefault("cache.leveldb.path", "sourcing-cache.ldb")

	v.SetDefault("breaker.failure_threshold", 3)
	v.SetDefault("breaker.cooldown", "30s")

	v.SetDefault("dedup.title_similarity", 0.9)
	v.SetDefault("dedup.price_tolerance", 0.03)

	v.SetDefault("scoring.relevance_weight", 0.5)
	v.SetDefault("scoring.constraint_weight", 0.4)
	v.SetDefault("scoring.trust_weight", 0.1)
	v.SetDefault("scoring.price_tolerance", 0.10)

	v.SetDefault("normalize.alias_file", "")

	v.SetDefault("providers.rainforest.enabled", false)
	v.SetDefault("providers.rainforest.trust_tier", 2)
	v.SetDefault("providers.rainforest.rate_limit", 2.0)
	v.SetDefault("providers.rainforest.burst", 2)
	v.SetDefault("providers.rainforest.api_key", "")
	v.SetDefault("providers.rainforest.base_url", "https://api.rainforestapi.com")
	v.SetDefault("providers.rainforest.amazon_domain", "amazon.com")

	v.SetDefault("providers.ebay.enabled", false)
	v.SetDefault("providers.ebay.trust_tier", 1)
	v.SetDefault("providers.ebay.rate_limit", 5.0)
	v.SetDefault("providers.ebay.burst", 5)
	v.SetDefault("providers.ebay.client_id", "")
	v.SetDefault("providers.ebay.client_secret", "")
	v.SetDefault("providers.ebay.base_url", "https://api.ebay.com")
	v.SetDefault("providers.ebay.marketplace", "EBAY_US")
	v.SetDefault("providers.ebay.limit", 25)

	v.SetDefault("providers.shopping.enabled", false)
	v.SetDefault("providers.shopping.trust_tier", 1)
	v.SetDefault("providers.shopping.rate_limit", 2.0)
	v.SetDefault("providers.shopping.burst", 2)
	v.SetDefault("providers.shopping.api_key", "")
	v.SetDefault("providers.shopping.base_url", "https://www.searchapi.io/api/v1")
	v.SetDefault("providers.shopping.country", "us")
	v.SetDefault("providers.shopping.language", "en")

	v.SetDefault("providers.catalog.enabled", false)
	v.SetDefault("providers.catalog.trust_tier", 3)
	v.SetDefault("providers.catalog.rate_limit", 20.0)
	v.SetDefault("providers.catalog.burst", 10)
	v.SetDefault("providers.catalog.addresses", []string{"http://localhost:9200"})
	v.SetDefault("providers.catalog.username", "")
	v.SetDefault("providers.catalog.password", "")
	v.SetDefault("providers.catalog.index", "catalog")
	v.SetDefault("providers.catalog.size", 25)

	v.SetDefault("providers.demo.enabled", false)
	v.SetDefault("providers.demo.trust_tier", 0)
	v.SetDefault("providers.demo.count", 5)
	v.SetDefault("providers.demo.latency", "0s")

	v.SetDefault("audit.driver", "none")
	v.SetDefault("audit.database_url", "")
	v.SetDefault("audit.max_conns", 4)
}

// Validate checks that the configuration is usable. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Sourcing.Deadline <= 0 {
		add("sourcing.deadline must be positive")
	}
	if len(c.Sourcing.BaseCurrency) != 3 {
		add("sourcing.base_currency must be a 3-letter code, got %q", c.Sourcing.BaseCurrency)
	}

	switch c.Cache.Driver {
	case "memory", "redis", "sqlite", "leveldb", "none":
	default:
		add("cache.driver %q is not one of memory, redis, sqlite, leveldb, none", c.Cache.Driver)
	}
	if c.Cache.Driver != "none" && c.Cache.TTL <= 0 {
		add("cache.ttl must be positive")
	}

	if c.Breaker.FailureThreshold < 1 {
		add("breaker.failure_threshold must be at least 1")
	}
	if c.Breaker.Cooldown <= 0 {
		add("breaker.cooldown must be positive")
	}

	if c.Dedup.TitleSimilarity <= 0 || c.Dedup.TitleSimilarity > 1 {
		add("dedup.title_similarity must be in (0, 1]")
	}
	if c.Dedup.PriceTolerance < 0 {
		add("dedup.price_tolerance must not be negative")
	}

	switch c.Audit.Driver {
	case "none", "log":
	case "postgres":
		if c.Audit.DatabaseURL == "" {
			add("audit.database_url is required for the postgres audit driver")
		}
	default:
		add("audit.driver %q is not one of none, log, postgres", c.Audit.Driver)
	}

	p := c.Providers
	tiers := map[string]ProviderCommon{
		"rainforest": p.Rainforest.ProviderCommon,
		"ebay":       p.Ebay.ProviderCommon,
		"shopping":   p.Shopping.ProviderCommon,
		"catalog":    p.Catalog.ProviderCommon,
		"demo":       p.Demo.ProviderCommon,
	}
	for _, name := range []string{"catalog", "demo", "ebay", "rainforest", "shopping"} {
		pc := tiers[name]
		if pc.Enabled && (pc.TrustTier < 0 || pc.TrustTier > 3) {
			add("providers.%s.trust_tier must be between 0 and 3, got %d", name, pc.TrustTier)
		}
	}
	if p.Rainforest.Enabled && p.Rainforest.APIKey == "" {
		add("providers.rainforest.api_key is required")
	}
	if p.Ebay.Enabled && (p.Ebay.ClientID == "" || p.Ebay.ClientSecret == "") {
		add("providers.ebay.client_id and providers.ebay.client_secret are required")
	}
	if p.Shopping.Enabled && p.Shopping.APIKey == "" {
		add("providers.shopping.api_key is required")
	}
	if p.Catalog.Enabled && len(p.Catalog.Addresses) == 0 {
		add("providers.catalog.addresses is required")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
