// Package metrics provides the centralized Prometheus registry reference for
// the gateway. All metrics are defined in their respective packages (cache,
// ratelimit, breaker, provider, aggregator) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the gateway.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - gateway_cache_hits_total{layer} (Counter): Cache hits by layer (memory, redis, fallback)
//   - gateway_cache_misses_total{layer} (Counter): Cache misses by layer
//   - gateway_cache_sets_total{layer} (Counter): Cache writes by layer
//   - gateway_cache_evictions_total{layer} (Counter): Entries evicted by layer
//   - gateway_cache_errors_total{layer, operation} (Counter): Cache operation errors
//   - gateway_cache_promotions_total (Counter): Shared-tier hits copied into the memory tier
//   - gateway_cache_shared_mode (Gauge): Shared tier mode, 1 remote / 0 in-process fallback
//   - gateway_cache_singleflight_shared_total (Counter): GetOrCompute calls served by a concurrent compute
//
// Rate Limit Metrics (pkg/ratelimit):
//   - gateway_rate_limit_allowed_total{endpoint} (Counter): Requests allowed through
//   - gateway_rate_limit_blocked_total{endpoint} (Counter): Requests refused or made to wait
//   - gateway_rate_limit_wait_seconds{endpoint} (Histogram): Time spent waiting for a slot
//
// Circuit Breaker Metrics (pkg/breaker):
//   - gateway_breaker_state{service} (Gauge): 0 closed, 1 open, 2 half-open
//   - gateway_breaker_transitions_total{service, to} (Counter): State transitions
//   - gateway_breaker_rejected_total{service} (Counter): Calls rejected by an open circuit
//
// Provider Metrics (pkg/provider):
//   - gateway_provider_requests_total{provider, status} (Counter): Upstream requests by status
//   - gateway_provider_request_duration_seconds{provider} (Histogram): Upstream request duration
//   - gateway_provider_errors_total{provider, class} (Counter): Upstream errors by class
//     (client, server, network, validation)
//
// Aggregation Metrics (pkg/aggregator):
//   - gateway_aggregations_total{outcome} (Counter): Summary aggregations by outcome
//     (success, partial_failure, cached)
//   - gateway_aggregation_duration_seconds (Histogram): Wall time of one aggregation
//   - gateway_point_resolutions_total{point, source, status} (Counter): Data point
//     resolutions by source (provider name, cache, stale, placeholder) and status
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(gateway_cache_hits_total[5m])) /
//   (sum(rate(gateway_cache_hits_total[5m])) + sum(rate(gateway_cache_misses_total[5m])))
//
//   # Circuits Currently Open
//   gateway_breaker_state == 1
//
//   # Degraded Point Rate
//   sum(rate(gateway_point_resolutions_total{source=~"stale|placeholder"}[5m]))
//
//   # P95 Upstream Latency per Provider
//   histogram_quantile(0.95, rate(gateway_provider_request_duration_seconds_bucket[5m]))
//
//   # Shared Tier Running Degraded
//   gateway_cache_shared_mode == 0
