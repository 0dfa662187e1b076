// Package config resolves the gateway's runtime configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tradewatch/market-gateway/pkg/breaker"
	"github.com/tradewatch/market-gateway/pkg/ratelimit"
)

// Config is the resolved runtime configuration for the gateway.
// It merges built-in defaults, an optional YAML file, and environment
// overrides, in that order.
type Config struct {
	Port            int
	ShutdownTimeout time.Duration

	LogLevel  string
	LogPretty bool

	RedisURL string
	// RedisRequired makes startup fail when the shared tier is unreachable.
	// Off by default: the cache degrades to its in-process fallback instead.
	RedisRequired bool

	MemoryMaxEntries int
	MemoryDefaultTTL time.Duration

	HTTPTimeout      time.Duration
	BinanceURL       string
	CoinGeckoURL     string
	CoinMarketCapURL string
	AlternativeMeURL string
	CMCAPIKey        string
	Symbol           string
	CoinID           string
	VsCurrency       string
	QuoteSymbol      string

	AggregatorTimeout time.Duration
	MaxConcurrency    int
	CacheSummary      bool

	HighFrequency ratelimit.Config
	LowFrequency  ratelimit.Config
	Critical      breaker.Config
	NonCritical   breaker.Config
}

// configFile mirrors the YAML schema. Durations are strings in
// time.ParseDuration syntax so the file stays readable.
type configFile struct {
	Server struct {
		Port            int    `yaml:"port"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty *bool  `yaml:"pretty"`
	} `yaml:"log"`
	Redis struct {
		URL      string `yaml:"url"`
		Required *bool  `yaml:"required"`
	} `yaml:"redis"`
	Cache struct {
		MemoryMaxEntries int    `yaml:"memory_max_entries"`
		MemoryDefaultTTL string `yaml:"memory_default_ttl"`
	} `yaml:"cache"`
	Providers struct {
		HTTPTimeout      string `yaml:"http_timeout"`
		BinanceURL       string `yaml:"binance_url"`
		CoinGeckoURL     string `yaml:"coingecko_url"`
		CoinMarketCapURL string `yaml:"coinmarketcap_url"`
		AlternativeMeURL string `yaml:"alternative_me_url"`
		CMCAPIKey        string `yaml:"cmc_api_key"`
		Symbol           string `yaml:"symbol"`
		CoinID           string `yaml:"coin_id"`
		VsCurrency       string `yaml:"vs_currency"`
		QuoteSymbol      string `yaml:"quote_symbol"`
	} `yaml:"providers"`
	Aggregator struct {
		Timeout        string `yaml:"timeout"`
		MaxConcurrency int    `yaml:"max_concurrency"`
		CacheSummary   *bool  `yaml:"cache_summary"`
	} `yaml:"aggregator"`
	RateLimits struct {
		HighFrequency limitFile `yaml:"high_frequency"`
		LowFrequency  limitFile `yaml:"low_frequency"`
	} `yaml:"rate_limits"`
	Breakers struct {
		Critical    breakerFile `yaml:"critical"`
		NonCritical breakerFile `yaml:"non_critical"`
	} `yaml:"breakers"`
}

type limitFile struct {
	RequestsPerWindow int    `yaml:"requests_per_window"`
	Window            string `yaml:"window"`
	Cooldown          string `yaml:"cooldown"`
}

type breakerFile struct {
	FailureThreshold int    `yaml:"failure_threshold"`
	SuccessThreshold int    `yaml:"success_threshold"`
	OpenTimeout      string `yaml:"open_timeout"`
	ResetTimeout     string `yaml:"reset_timeout"`
}

// Load resolves configuration in priority order: defaults -> file -> env.
// A missing file falls back to defaults; an unparseable one fails Load.
func Load(path string) (Config, error) {
	cfg := Config{
		Port:              8080,
		ShutdownTimeout:   10 * time.Second,
		LogLevel:          "info",
		RedisURL:          "redis://localhost:6379/0",
		MemoryMaxEntries:  10000,
		MemoryDefaultTTL:  5 * time.Minute,
		HTTPTimeout:       10 * time.Second,
		Symbol:            "BTCUSDT",
		CoinID:            "bitcoin",
		VsCurrency:        "usd",
		QuoteSymbol:       "BTC",
		AggregatorTimeout: 20 * time.Second,
		MaxConcurrency:    4,
		CacheSummary:      true,
		HighFrequency:     ratelimit.HighFrequencyProfile(),
		LowFrequency:      ratelimit.LowFrequencyProfile(),
		Critical:          breaker.CriticalProfile(),
		NonCritical:       breaker.NonCriticalProfile(),
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			var f configFile
			if err := yaml.Unmarshal(raw, &f); err != nil {
				return Config{}, fmt.Errorf("parse config file: %w", err)
			}
			if err := applyFile(&cfg, f); err != nil {
				return Config{}, err
			}
		case !os.IsNotExist(err):
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg.Port = envInt("PORT", cfg.Port)
	cfg.LogLevel = envOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogPretty = envBool("LOG_PRETTY", cfg.LogPretty)
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.RedisRequired = envBool("REDIS_REQUIRED", cfg.RedisRequired)
	cfg.CMCAPIKey = envOrDefault("CMC_API_KEY", cfg.CMCAPIKey)
	if err := envDuration("AGGREGATOR_TIMEOUT", &cfg.AggregatorTimeout); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// applyFile copies set file values over the defaults.
func applyFile(cfg *Config, f configFile) error {
	if f.Server.Port > 0 {
		cfg.Port = f.Server.Port
	}
	if f.Log.Level != "" {
		cfg.LogLevel = f.Log.Level
	}
	if f.Log.Pretty != nil {
		cfg.LogPretty = *f.Log.Pretty
	}
	if f.Redis.URL != "" {
		cfg.RedisURL = f.Redis.URL
	}
	if f.Redis.Required != nil {
		cfg.RedisRequired = *f.Redis.Required
	}
	if f.Cache.MemoryMaxEntries > 0 {
		cfg.MemoryMaxEntries = f.Cache.MemoryMaxEntries
	}
	if f.Providers.BinanceURL != "" {
		cfg.BinanceURL = f.Providers.BinanceURL
	}
	if f.Providers.CoinGeckoURL != "" {
		cfg.CoinGeckoURL = f.Providers.CoinGeckoURL
	}
	if f.Providers.CoinMarketCapURL != "" {
		cfg.CoinMarketCapURL = f.Providers.CoinMarketCapURL
	}
	if f.Providers.AlternativeMeURL != "" {
		cfg.AlternativeMeURL = f.Providers.AlternativeMeURL
	}
	if f.Providers.CMCAPIKey != "" {
		cfg.CMCAPIKey = f.Providers.CMCAPIKey
	}
	if f.Providers.Symbol != "" {
		cfg.Symbol = f.Providers.Symbol
	}
	if f.Providers.CoinID != "" {
		cfg.CoinID = f.Providers.CoinID
	}
	if f.Providers.VsCurrency != "" {
		cfg.VsCurrency = f.Providers.VsCurrency
	}
	if f.Providers.QuoteSymbol != "" {
		cfg.QuoteSymbol = f.Providers.QuoteSymbol
	}
	if f.Aggregator.MaxConcurrency > 0 {
		cfg.MaxConcurrency = f.Aggregator.MaxConcurrency
	}
	if f.Aggregator.CacheSummary != nil {
		cfg.CacheSummary = *f.Aggregator.CacheSummary
	}
	if f.RateLimits.HighFrequency.RequestsPerWindow > 0 {
		cfg.HighFrequency.RequestsPerWindow = f.RateLimits.HighFrequency.RequestsPerWindow
	}
	if f.RateLimits.LowFrequency.RequestsPerWindow > 0 {
		cfg.LowFrequency.RequestsPerWindow = f.RateLimits.LowFrequency.RequestsPerWindow
	}
	if f.Breakers.Critical.FailureThreshold > 0 {
		cfg.Critical.FailureThreshold = f.Breakers.Critical.FailureThreshold
	}
	if f.Breakers.Critical.SuccessThreshold > 0 {
		cfg.Critical.SuccessThreshold = f.Breakers.Critical.SuccessThreshold
	}
	if f.Breakers.NonCritical.FailureThreshold > 0 {
		cfg.NonCritical.FailureThreshold = f.Breakers.NonCritical.FailureThreshold
	}
	if f.Breakers.NonCritical.SuccessThreshold > 0 {
		cfg.NonCritical.SuccessThreshold = f.Breakers.NonCritical.SuccessThreshold
	}

	durations := []struct {
		dst   *time.Duration
		raw   string
		field string
	}{
		{&cfg.ShutdownTimeout, f.Server.ShutdownTimeout, "server.shutdown_timeout"},
		{&cfg.MemoryDefaultTTL, f.Cache.MemoryDefaultTTL, "cache.memory_default_ttl"},
		{&cfg.HTTPTimeout, f.Providers.HTTPTimeout, "providers.http_timeout"},
		{&cfg.AggregatorTimeout, f.Aggregator.Timeout, "aggregator.timeout"},
		{&cfg.HighFrequency.Window, f.RateLimits.HighFrequency.Window, "rate_limits.high_frequency.window"},
		{&cfg.HighFrequency.Cooldown, f.RateLimits.HighFrequency.Cooldown, "rate_limits.high_frequency.cooldown"},
		{&cfg.LowFrequency.Window, f.RateLimits.LowFrequency.Window, "rate_limits.low_frequency.window"},
		{&cfg.LowFrequency.Cooldown, f.RateLimits.LowFrequency.Cooldown, "rate_limits.low_frequency.cooldown"},
		{&cfg.Critical.OpenTimeout, f.Breakers.Critical.OpenTimeout, "breakers.critical.open_timeout"},
		{&cfg.Critical.ResetTimeout, f.Breakers.Critical.ResetTimeout, "breakers.critical.reset_timeout"},
		{&cfg.NonCritical.OpenTimeout, f.Breakers.NonCritical.OpenTimeout, "breakers.non_critical.open_timeout"},
		{&cfg.NonCritical.ResetTimeout, f.Breakers.NonCritical.ResetTimeout, "breakers.non_critical.reset_timeout"},
	}
	for _, d := range durations {
		if err := overrideDuration(d.dst, d.raw, d.field); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks the resolved configuration.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.RedisURL == "" {
		return fmt.Errorf("redis url is required")
	}
	if c.MemoryMaxEntries <= 0 {
		return fmt.Errorf("memory_max_entries must be positive (got %d)", c.MemoryMaxEntries)
	}
	if c.MemoryDefaultTTL <= 0 {
		return fmt.Errorf("memory_default_ttl must be positive")
	}
	if c.HTTPTimeout <= 0 || c.AggregatorTimeout <= 0 || c.ShutdownTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("max_concurrency must be positive (got %d)", c.MaxConcurrency)
	}
	if c.Symbol == "" || c.CoinID == "" || c.VsCurrency == "" || c.QuoteSymbol == "" {
		return fmt.Errorf("provider symbols are required")
	}
	if err := c.HighFrequency.Validate(); err != nil {
		return fmt.Errorf("rate_limits.high_frequency: %w", err)
	}
	if err := c.LowFrequency.Validate(); err != nil {
		return fmt.Errorf("rate_limits.low_frequency: %w", err)
	}
	if err := c.Critical.Validate(); err != nil {
		return fmt.Errorf("breakers.critical: %w", err)
	}
	if err := c.NonCritical.Validate(); err != nil {
		return fmt.Errorf("breakers.non_critical: %w", err)
	}
	return nil
}

// overrideDuration parses raw into dst when raw is set.
func overrideDuration(dst *time.Duration, raw, field string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	*dst = d
	return nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envBool parses common boolean env forms while keeping a deterministic fallback.
func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}

// envDuration parses duration env vars; invalid values fail loading.
func envDuration(name string, dst *time.Duration) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	*dst = d
	return nil
}
