// Command market-gateway serves aggregated market data from unreliable,
// rate-limited upstream providers behind a two-tier cache.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradewatch/market-gateway/internal/config"
	"github.com/tradewatch/market-gateway/internal/server"
	"github.com/tradewatch/market-gateway/pkg/aggregator"
	"github.com/tradewatch/market-gateway/pkg/breaker"
	"github.com/tradewatch/market-gateway/pkg/cache"
	"github.com/tradewatch/market-gateway/pkg/logging"
	"github.com/tradewatch/market-gateway/pkg/provider"
	"github.com/tradewatch/market-gateway/pkg/ratelimit"
)

func main() {
	logger := logging.Setup(logging.DefaultConfig())

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "gateway.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", configPath).Msg("Configuration failed to load")
	}

	logger = logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	}).With().Str("component", "gateway").Logger()

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid redis configuration")
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	pingErr := redisClient.Ping(pingCtx).Err()
	cancel()
	if pingErr != nil {
		if cfg.RedisRequired {
			logger.Fatal().Err(pingErr).Str("url", cfg.RedisURL).Msg("Redis unreachable and required")
		}
		logger.Warn().Err(pingErr).Msg("Redis unreachable, shared tier starting in fallback mode")
	} else {
		logger.Info().Str("url", cfg.RedisURL).Msg("Connected to Redis")
	}

	manager := cache.NewManager(
		cache.NewMemoryStore(cache.MemoryConfig{
			MaxEntries: cfg.MemoryMaxEntries,
			DefaultTTL: cfg.MemoryDefaultTTL,
		}),
		cache.NewRedisStore(redisClient, cache.RedisConfig{
			DefaultTTL: cfg.MemoryDefaultTTL,
		}),
	)

	limiter := ratelimit.NewLimiter()
	cb := breaker.New()

	points, err := buildPoints(cfg, limiter, cb)
	if err != nil {
		logger.Fatal().Err(err).Msg("Provider wiring failed")
	}

	agg, err := aggregator.New(manager, limiter, cb, aggregator.Config{
		Points:         points,
		Timeout:        cfg.AggregatorTimeout,
		MaxConcurrency: cfg.MaxConcurrency,
		CacheSummary:   cfg.CacheSummary,
		SummaryKey:     cache.Key("market", "summary"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Aggregator construction failed")
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.New(agg, manager, cb).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Int("port", cfg.Port).Int("points", len(points)).Msg("Gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	case err := <-errCh:
		logger.Fatal().Err(err).Msg("Server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
	}
	if err := redisClient.Close(); err != nil {
		logger.Debug().Err(err).Msg("Redis close failed")
	}
	logger.Info().Msg("Gateway stopped")
}

// newRedisClient accepts redis:// and rediss:// URLs as well as bare
// host:port addresses.
func newRedisClient(rawURL string) (*redis.Client, error) {
	if strings.HasPrefix(rawURL, "redis://") || strings.HasPrefix(rawURL, "rediss://") {
		opts, err := redis.ParseURL(rawURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: rawURL}), nil
}

// buildPoints constructs the provider fetchers, registers their rate
// budgets and circuits, and assembles the gateway's data points.
//
// The spot price rides a three-deep fallback chain; the paid tertiary
// source joins it only when an API key is configured.
func buildPoints(cfg config.Config, limiter *ratelimit.Limiter, cb *breaker.CircuitBreaker) ([]aggregator.DataPoint, error) {
	httpClient := provider.NewHTTPClient(cfg.HTTPTimeout)

	binanceTicker := &provider.BinanceTicker{Client: httpClient, BaseURL: cfg.BinanceURL, Symbol: cfg.Symbol}
	binance24h := &provider.Binance24h{Client: httpClient, BaseURL: cfg.BinanceURL, Symbol: cfg.Symbol}
	geckoPrice := &provider.CoinGeckoPrice{Client: httpClient, BaseURL: cfg.CoinGeckoURL, ID: cfg.CoinID, VsCurrency: cfg.VsCurrency}
	geckoGlobal := &provider.CoinGeckoGlobal{Client: httpClient, BaseURL: cfg.CoinGeckoURL}
	cmcQuote := &provider.CoinMarketCapQuote{
		Client:  httpClient,
		BaseURL: cfg.CoinMarketCapURL,
		Symbol:  cfg.QuoteSymbol,
		Convert: strings.ToUpper(cfg.VsCurrency),
		APIKey:  cfg.CMCAPIKey,
	}
	fearGreed := &provider.FearGreedIndex{Client: httpClient, BaseURL: cfg.AlternativeMeURL}

	limits := map[string]ratelimit.Config{
		binanceTicker.Endpoint(): cfg.HighFrequency,
		binance24h.Endpoint():    cfg.HighFrequency,
		geckoPrice.Endpoint():    cfg.LowFrequency,
		geckoGlobal.Endpoint():   cfg.LowFrequency,
		cmcQuote.Endpoint():      cfg.LowFrequency,
		fearGreed.Endpoint():     cfg.LowFrequency,
	}
	for endpoint, limit := range limits {
		if err := limiter.ConfigureEndpoint(endpoint, limit); err != nil {
			return nil, err
		}
	}

	circuits := map[string]breaker.Config{
		binanceTicker.Service(): cfg.Critical,
		geckoPrice.Service():    cfg.NonCritical,
		cmcQuote.Service():      cfg.NonCritical,
		fearGreed.Service():     cfg.NonCritical,
	}
	for service, circuit := range circuits {
		if err := cb.Configure(service, circuit); err != nil {
			return nil, err
		}
	}

	priceChain := []provider.Fetcher{binanceTicker, geckoPrice}
	if cfg.CMCAPIKey != "" {
		priceChain = append(priceChain, cmcQuote)
	}

	return []aggregator.DataPoint{
		{
			Name:        "btc_price",
			Key:         cache.Key("market", "btc_price"),
			Strategy:    cache.RealTime,
			Chain:       priceChain,
			Placeholder: json.RawMessage(fmt.Sprintf(`{"symbol":%q,"price":0}`, cfg.Symbol)),
		},
		{
			Name:        "btc_technicals",
			Key:         cache.Key("market", "btc_technicals"),
			Strategy:    cache.ShortTerm,
			Chain:       []provider.Fetcher{binance24h},
			Placeholder: json.RawMessage(fmt.Sprintf(`{"symbol":%q,"price_change_pct":0,"high":0,"low":0,"volume":0}`, cfg.Symbol)),
		},
		{
			Name:        "market_overview",
			Key:         cache.Key("market", "overview"),
			Strategy:    cache.MediumTerm,
			Chain:       []provider.Fetcher{geckoGlobal},
			Placeholder: json.RawMessage(`{"market_cap_usd":0,"volume_24h_usd":0,"btc_dominance_pct":0}`),
		},
		{
			Name:        "fear_greed",
			Key:         cache.Key("market", "fear_greed"),
			Strategy:    cache.MediumTerm,
			Chain:       []provider.Fetcher{fearGreed},
			Placeholder: json.RawMessage(`{"value":50,"classification":"Neutral"}`),
		},
	}, nil
}
