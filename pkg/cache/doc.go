// Package cache provides the two-tier caching layer for market data reads.
//
// The layer combines a bounded in-process tier with a Redis-backed shared
// tier behind a single Manager:
//
// - Reads try the memory tier first, then Redis
// - Shared-tier hits are promoted into the memory tier asynchronously
// - Writes go to both tiers and succeed when at least one tier accepts them
// - TTLs are resolved from named strategies (RealTime, ShortTerm, ...)
// - GetOrCompute collapses concurrent misses into a single compute per key
// - An unreachable Redis degrades the shared tier to an in-process fallback
//
// # Basic Usage
//
//	memory := cache.NewMemoryStore(cache.DefaultMemoryConfig())
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//	shared := cache.NewRedisStore(redisClient, cache.DefaultRedisConfig())
//
//	manager := cache.NewManager(memory, shared)
//
//	key := cache.Key("price", "binance", "realtime")
//	if err := manager.SetWithStrategy(ctx, key, doc, cache.RealTime); err != nil {
//		return err
//	}
//
//	value, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// miss in both tiers - fetch from a provider
//	}
//
// # Stampede Protection
//
//	value, err := manager.GetOrCompute(ctx, key, cache.RealTime, func(ctx context.Context) (json.RawMessage, error) {
//		return fetchFromProvider(ctx)
//	})
//
// Concurrent callers racing on the same missing key share one compute
// invocation; the winner's value is cached before anyone unblocks.
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - gateway_cache_hits_total{layer} - Cache hits per tier
//   - gateway_cache_misses_total{layer} - Cache misses per tier
//   - gateway_cache_sets_total{layer} - Cache writes per tier
//   - gateway_cache_evictions_total{layer} - Engine evictions
//   - gateway_cache_errors_total{layer,operation} - Operation errors
//   - gateway_cache_promotions_total - Shared-tier hits copied to memory
//   - gateway_cache_shared_mode - 1 remote, 0 in-process fallback
//   - gateway_cache_singleflight_shared_total - Callers served by another caller's compute
package cache
