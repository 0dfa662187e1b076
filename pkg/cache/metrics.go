package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values identifying the cache tiers.
const (
	layerMemory   = "memory"
	layerRedis    = "redis"
	layerFallback = "fallback"
)

var (
	// CacheHits tracks cache hits by tier.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"layer"}, // "memory", "redis", "fallback"
	)

	// CacheMisses tracks cache misses by tier.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"layer"},
	)

	// CacheSets tracks cache writes by tier.
	CacheSets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_cache_sets_total",
			Help: "Total number of cache writes",
		},
		[]string{"layer"},
	)

	// CacheEvictions tracks entries evicted by a tier's engine, either for
	// size pressure or engine-level TTL.
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_cache_evictions_total",
			Help: "Total number of cache entries evicted",
		},
		[]string{"layer"},
	)

	// CacheErrors tracks cache operation errors.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"layer", "operation"}, // "get", "set", "delete", "clear"
	)

	// CachePromotions tracks shared-tier hits copied into the memory tier.
	CachePromotions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_cache_promotions_total",
			Help: "Total number of entries promoted from the shared tier to the memory tier",
		},
	)

	// SharedTierMode indicates whether the shared tier currently talks to
	// Redis (1) or to its in-process fallback (0).
	SharedTierMode = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_cache_shared_mode",
			Help: "Shared tier mode: 1 remote, 0 in-process fallback",
		},
	)

	// SingleflightShared tracks GetOrCompute callers that received another
	// caller's computed value instead of computing their own.
	SingleflightShared = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_cache_singleflight_shared_total",
			Help: "Total number of GetOrCompute calls served by a concurrent caller's compute",
		},
	)
)
