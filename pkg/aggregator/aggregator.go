// Package aggregator fans out over independent data points, each backed by
// a fallback chain of providers, and merges them into one result. A point
// whose chain is exhausted degrades to its stale copy and finally to a
// neutral placeholder; it never fails the summary.
package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tradewatch/market-gateway/pkg/breaker"
	"github.com/tradewatch/market-gateway/pkg/cache"
	"github.com/tradewatch/market-gateway/pkg/logging"
	"github.com/tradewatch/market-gateway/pkg/ratelimit"
)

// Prometheus metrics for aggregation operations.
var (
	aggregationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_aggregations_total",
		Help: "Total summary aggregations by outcome",
	}, []string{"outcome"})

	aggregationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_aggregation_duration_seconds",
		Help:    "Wall time of one summary aggregation",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 20},
	})

	pointResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_point_resolutions_total",
		Help: "Total data point resolutions by point, source, and status",
	}, []string{"point", "source", "status"})
)

// Common errors returned by the aggregator.
var (
	// ErrChainExhausted is returned when every provider in a point's
	// fallback chain failed or was skipped.
	ErrChainExhausted = errors.New("provider chain exhausted")

	// ErrUnknownPoint is returned by FetchPoint for names the aggregator
	// was not configured with.
	ErrUnknownPoint = errors.New("unknown data point")
)

const (
	defaultTimeout        = 20 * time.Second
	defaultMaxConcurrency = 4

	// staleReadTimeout bounds recovery reads that run after the fan-out
	// deadline already expired.
	staleReadTimeout = 2 * time.Second
)

// Config holds the aggregator configuration.
type Config struct {
	// Points are the data points resolved by every FetchSummary call.
	Points []DataPoint

	// Timeout bounds the whole fan-out. Defaults to 20s.
	Timeout time.Duration

	// MaxConcurrency caps how many points resolve at once. Defaults to 4.
	MaxConcurrency int

	// CacheSummary enables caching fully successful summaries under
	// SummaryKey with the RealTime strategy.
	CacheSummary bool

	// SummaryKey is the cache key for whole summaries. Required when
	// CacheSummary is set.
	SummaryKey string
}

// Aggregator resolves a set of data points through their fallback chains.
type Aggregator struct {
	manager *cache.Manager
	limiter *ratelimit.Limiter
	breaker *breaker.CircuitBreaker
	cfg     Config
	points  map[string]DataPoint
	stats   Stats
	logger  zerolog.Logger
}

// New creates an aggregator over the given collaborators.
func New(manager *cache.Manager, limiter *ratelimit.Limiter, cb *breaker.CircuitBreaker, cfg Config) (*Aggregator, error) {
	if manager == nil {
		return nil, fmt.Errorf("cache manager is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if cb == nil {
		return nil, fmt.Errorf("circuit breaker is required")
	}
	if len(cfg.Points) == 0 {
		return nil, fmt.Errorf("at least one data point is required")
	}

	points := make(map[string]DataPoint, len(cfg.Points))
	for _, p := range cfg.Points {
		if p.Name == "" {
			return nil, fmt.Errorf("data point name is required")
		}
		if _, dup := points[p.Name]; dup {
			return nil, fmt.Errorf("duplicate data point %q", p.Name)
		}
		if p.Key == "" {
			return nil, fmt.Errorf("data point %q: cache key is required", p.Name)
		}
		if len(p.Chain) == 0 {
			return nil, fmt.Errorf("data point %q: at least one provider is required", p.Name)
		}
		points[p.Name] = p
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	if cfg.CacheSummary && cfg.SummaryKey == "" {
		return nil, fmt.Errorf("summary key is required when summary caching is enabled")
	}

	return &Aggregator{
		manager: manager,
		limiter: limiter,
		breaker: cb,
		cfg:     cfg,
		points:  points,
		logger:  logging.NewLogger("aggregator"),
	}, nil
}

// FetchSummary resolves every configured point concurrently and merges the
// outcomes. It returns a non-nil Result with PartialFailure set when points
// degraded; the error is reserved for the caller's context expiring before
// anything could be assembled.
func (a *Aggregator) FetchSummary(ctx context.Context) (*Result, error) {
	start := time.Now()
	a.stats.totalAggregations.Add(1)

	if a.cfg.CacheSummary {
		if value, err := a.manager.Get(ctx, a.cfg.SummaryKey); err == nil {
			var result Result
			decodeErr := json.Unmarshal(value, &result)
			if decodeErr == nil {
				a.stats.successful.Add(1)
				aggregationsTotal.WithLabelValues("cached").Inc()
				a.logger.Debug().Str("request_id", result.RequestID).Msg("Serving cached summary")
				return &result, nil
			}
			a.logger.Warn().Err(decodeErr).Str("key", a.cfg.SummaryKey).Msg("Dropping undecodable cached summary")
			_ = a.manager.Remove(ctx, a.cfg.SummaryKey)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("aggregation aborted: %w", err)
	}

	fanCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	resolved := make([]PointResult, len(a.cfg.Points))
	g, gctx := errgroup.WithContext(fanCtx)
	g.SetLimit(a.cfg.MaxConcurrency)

	for i, point := range a.cfg.Points {
		i, point := i, point
		g.Go(func() error {
			resolved[i] = a.resolvePoint(gctx, point)
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{
		RequestID:   uuid.NewString(),
		DataPoints:  make(map[string]PointResult, len(resolved)),
		GeneratedAt: time.Now().UTC(),
	}
	for i, point := range a.cfg.Points {
		pr := resolved[i]
		result.DataPoints[point.Name] = pr
		if pr.Status != StatusOK {
			result.PartialFailure = true
		}
		pointResolutionsTotal.WithLabelValues(point.Name, pr.Source, string(pr.Status)).Inc()
	}
	result.FetchDurationMS = time.Since(start).Milliseconds()
	aggregationDuration.Observe(time.Since(start).Seconds())

	if result.PartialFailure {
		a.stats.partialFailures.Add(1)
		aggregationsTotal.WithLabelValues("partial_failure").Inc()
		a.logger.Warn().
			Str("request_id", result.RequestID).
			Int64("duration_ms", result.FetchDurationMS).
			Msg("Aggregation completed with degraded points")
		return result, nil
	}

	a.stats.successful.Add(1)
	aggregationsTotal.WithLabelValues("success").Inc()

	if a.cfg.CacheSummary {
		if payload, err := json.Marshal(result); err == nil {
			if err := a.manager.SetWithStrategy(ctx, a.cfg.SummaryKey, payload, cache.RealTime); err != nil {
				a.logger.Warn().Err(err).Str("key", a.cfg.SummaryKey).Msg("Failed to cache summary")
			}
		}
	}

	a.logger.Info().
		Str("request_id", result.RequestID).
		Int("points", len(result.DataPoints)).
		Int64("duration_ms", result.FetchDurationMS).
		Msg("Aggregation completed")

	return result, nil
}

// FetchPoint resolves a single data point by name. Concurrent fetches for
// the same key collapse into one provider call via the cache manager.
// An exhausted chain surfaces as ErrChainExhausted; the caller decides
// whether a placeholder applies.
func (a *Aggregator) FetchPoint(ctx context.Context, name string) (json.RawMessage, error) {
	point, ok := a.points[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPoint, name)
	}

	return a.manager.GetOrCompute(ctx, point.Key, point.Strategy, func(ctx context.Context) (json.RawMessage, error) {
		value, _, err := a.fetchChain(ctx, point)
		if err != nil {
			return nil, err
		}
		if err := a.manager.SetWithStrategy(ctx, cache.StaleKey(point.Key), value, cache.LongTerm); err != nil {
			a.logger.Warn().Err(err).Str("point", point.Name).Msg("Failed to refresh stale copy")
		}
		return value, nil
	})
}

// resolvePoint resolves one data point: cache first, then the fallback
// chain, then the stale copy, then the neutral placeholder.
func (a *Aggregator) resolvePoint(ctx context.Context, point DataPoint) PointResult {
	if value, err := a.manager.Get(ctx, point.Key); err == nil {
		return PointResult{Value: value, Source: "cache", Status: StatusOK}
	}

	value, source, err := a.fetchChain(ctx, point)
	if err == nil {
		a.writeThrough(ctx, point, value)
		return PointResult{Value: value, Source: source, Status: StatusOK}
	}

	status := StatusFailed
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		status = StatusTimeout
	}

	// Stale reads get a bounded detached context once the fan-out deadline
	// has passed.
	readCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		readCtx, cancel = context.WithTimeout(context.Background(), staleReadTimeout)
		defer cancel()
	}

	if value, err := a.manager.Get(readCtx, cache.StaleKey(point.Key)); err == nil {
		a.logger.Warn().
			Str("point", point.Name).
			Str("status", string(status)).
			Msg("Serving stale document")
		return PointResult{Value: value, Source: "stale", Status: status}
	}

	a.logger.Warn().
		Str("point", point.Name).
		Str("status", string(status)).
		Msg("Chain exhausted, serving placeholder")
	return PointResult{Value: point.Placeholder, Source: "placeholder", Status: status}
}

// fetchChain walks the fallback chain until one provider returns a valid
// document. Open circuits are skipped without spending a call; failures are
// recorded against the provider's circuit and the walk moves on.
func (a *Aggregator) fetchChain(ctx context.Context, point DataPoint) (json.RawMessage, string, error) {
	var lastErr error

	for _, fetcher := range point.Chain {
		if err := ctx.Err(); err != nil {
			return nil, "", fmt.Errorf("point %s: %w", point.Name, err)
		}

		service := fetcher.Service()

		if !a.breaker.CanProceed(service) {
			a.logger.Debug().
				Str("point", point.Name).
				Str("service", service).
				Msg("Circuit open, skipping provider")
			lastErr = fmt.Errorf("%s: %w", service, breaker.ErrCircuitOpen)
			continue
		}

		if err := a.limiter.WaitForLimit(ctx, fetcher.Endpoint()); err != nil {
			lastErr = err
			continue
		}

		value, err := fetcher.Fetch(ctx)
		if err != nil {
			a.breaker.RecordFailure(service)
			a.logger.Warn().
				Err(err).
				Str("point", point.Name).
				Str("service", service).
				Msg("Provider call failed")
			lastErr = err
			continue
		}

		a.breaker.RecordSuccess(service)
		return value, service, nil
	}

	// A walk cut short by the deadline reports the deadline, not exhaustion.
	if err := ctx.Err(); err != nil {
		return nil, "", fmt.Errorf("point %s: %w", point.Name, err)
	}

	return nil, "", fmt.Errorf("%w for point %s: %v", ErrChainExhausted, point.Name, lastErr)
}

// writeThrough stores a fresh document under the point key and refreshes
// its stale twin.
func (a *Aggregator) writeThrough(ctx context.Context, point DataPoint, value json.RawMessage) {
	if err := a.manager.SetWithStrategy(ctx, point.Key, value, point.Strategy); err != nil {
		a.logger.Warn().Err(err).Str("point", point.Name).Str("key", point.Key).Msg("Failed to cache document")
	}
	if err := a.manager.SetWithStrategy(ctx, cache.StaleKey(point.Key), value, cache.LongTerm); err != nil {
		a.logger.Warn().Err(err).Str("point", point.Name).Msg("Failed to refresh stale copy")
	}
}

// Statistics returns a snapshot of the aggregation counters.
func (a *Aggregator) Statistics() StatsSnapshot {
	return a.stats.snapshot()
}
