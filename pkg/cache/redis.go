package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tradewatch/market-gateway/pkg/logging"
)

// Shared tier operating modes.
const (
	ModeRemote   = "remote"
	ModeFallback = "fallback"
)

// probeTimeout bounds the construction-time reachability probe.
const probeTimeout = 2 * time.Second

// RedisConfig configures the shared cache tier.
type RedisConfig struct {
	// KeyPrefix namespaces every key the store writes, so Clear never
	// touches foreign keys in a shared database.
	KeyPrefix string

	// DefaultTTL applies to entries that do not carry their own TTL.
	DefaultTTL time.Duration

	// FallbackMaxEntries bounds the in-process fallback serving reads and
	// writes while Redis is unreachable.
	FallbackMaxEntries int
}

// DefaultRedisConfig returns the shared tier defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		KeyPrefix:          "mg:cache:",
		DefaultTTL:         5 * time.Minute,
		FallbackMaxEntries: 4096,
	}
}

// RedisStore is the shared cache tier.
//
// Reachability is probed once at construction and cached in an atomic flag.
// While Redis is unreachable every operation transparently uses an
// in-process fallback with identical keys and TTL semantics; the rest of the
// system never learns about the outage. A mid-operation remote error flips
// the flag and retries the operation once against the fallback. HealthCheck
// re-probes and can flip the store back to remote mode.
type RedisStore struct {
	client    *redis.Client
	cfg       RedisConfig
	reachable atomic.Bool
	fallback  *MemoryStore
	counters  tierCounters
	logger    zerolog.Logger
}

// NewRedisStore creates the shared tier and probes the server once.
// An unreachable server is not an error; the store starts in fallback mode.
func NewRedisStore(client *redis.Client, cfg RedisConfig) *RedisStore {
	if client == nil {
		panic("redis client cannot be nil")
	}
	defaults := DefaultRedisConfig()
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaults.KeyPrefix
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = defaults.DefaultTTL
	}
	if cfg.FallbackMaxEntries <= 0 {
		cfg.FallbackMaxEntries = defaults.FallbackMaxEntries
	}

	s := &RedisStore{
		client: client,
		cfg:    cfg,
		fallback: newMemoryStore(MemoryConfig{
			MaxEntries: cfg.FallbackMaxEntries,
			DefaultTTL: cfg.DefaultTTL,
		}, layerFallback),
		logger: logging.NewLogger("cache"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		SharedTierMode.Set(0)
		s.logger.Warn().Err(err).Msg("redis unreachable, shared tier starting in fallback mode")
	} else {
		s.reachable.Store(true)
		SharedTierMode.Set(1)
	}
	return s
}

// Name identifies the tier in logs, metrics and health reports.
func (s *RedisStore) Name() string { return layerRedis }

// Mode reports whether operations currently reach Redis or the in-process
// fallback.
func (s *RedisStore) Mode() string {
	if s.reachable.Load() {
		return ModeRemote
	}
	return ModeFallback
}

// degrade flips the store into fallback mode after a remote failure. Races
// between concurrent detectors are tolerated; the flag converges after at
// most one extra failed call.
func (s *RedisStore) degrade(op string, err error) {
	s.counters.errors.Add(1)
	CacheErrors.WithLabelValues(layerRedis, op).Inc()
	if s.reachable.CompareAndSwap(true, false) {
		SharedTierMode.Set(0)
		s.logger.Warn().Err(err).Str("operation", op).Msg("redis error, shared tier switching to fallback mode")
	}
}

// Get returns the live entry stored under key. Remote outages never surface:
// the read retries against the in-process fallback instead. Corrupted
// payloads are deleted and reported as ErrInvalidEntry.
func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	if !s.reachable.Load() {
		return s.fallback.Get(ctx, key)
	}

	data, err := s.client.Get(ctx, s.cfg.KeyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			s.counters.misses.Add(1)
			CacheMisses.WithLabelValues(layerRedis).Inc()
			return nil, ErrCacheMiss
		}
		s.degrade("get", err)
		return s.fallback.Get(ctx, key)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.counters.errors.Add(1)
		CacheErrors.WithLabelValues(layerRedis, "get").Inc()
		_ = s.client.Del(ctx, s.cfg.KeyPrefix+key).Err()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = s.Remove(ctx, key)
		s.counters.misses.Add(1)
		CacheMisses.WithLabelValues(layerRedis).Inc()
		return nil, ErrCacheMiss
	}

	s.counters.hits.Add(1)
	CacheHits.WithLabelValues(layerRedis).Inc()
	return &entry, nil
}

// Set stores the entry with its remaining TTL as the Redis expiry. Entries
// without a TTL inherit the store default. A remote failure degrades the
// store and lands the write in the fallback instead.
func (s *RedisStore) Set(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	if entry.TTL <= 0 {
		clone := *entry
		clone.TTL = s.cfg.DefaultTTL
		entry = &clone
	}

	if !s.reachable.Load() {
		return s.fallback.Set(ctx, entry)
	}

	ttl := entry.RemainingTTL()
	if ttl <= 0 {
		// already expired, don't cache
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		s.counters.errors.Add(1)
		CacheErrors.WithLabelValues(layerRedis, "set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.client.Set(ctx, s.cfg.KeyPrefix+entry.Key, data, ttl).Err(); err != nil {
		s.degrade("set", err)
		return s.fallback.Set(ctx, entry)
	}

	s.counters.sets.Add(1)
	CacheSets.WithLabelValues(layerRedis).Inc()
	return nil
}

// Remove deletes key from Redis and from the fallback, which may hold a copy
// written during an earlier outage.
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	_ = s.fallback.Remove(ctx, key)

	if !s.reachable.Load() {
		return nil
	}
	if err := s.client.Del(ctx, s.cfg.KeyPrefix+key).Err(); err != nil {
		s.degrade("delete", err)
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Clear removes every entry in the store's namespace. Only keys carrying the
// configured prefix are touched.
func (s *RedisStore) Clear(ctx context.Context) error {
	_ = s.fallback.Clear(ctx)

	if !s.reachable.Load() {
		return nil
	}

	iter := s.client.Scan(ctx, 0, s.cfg.KeyPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.degrade("clear", err)
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		s.degrade("clear", err)
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Len counts the keys currently stored under the configured prefix.
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	if !s.reachable.Load() {
		return s.fallback.Len(), nil
	}

	var n int
	iter := s.client.Scan(ctx, 0, s.cfg.KeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		s.degrade("len", err)
		return s.fallback.Len(), nil
	}
	return n, nil
}

// HealthCheck re-probes the server and flips the store back to remote mode
// when the connection has recovered.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		if s.reachable.CompareAndSwap(true, false) {
			SharedTierMode.Set(0)
			s.logger.Warn().Err(err).Msg("redis health check failed, shared tier in fallback mode")
		}
		return fmt.Errorf("redis ping: %w", err)
	}
	if s.reachable.CompareAndSwap(false, true) {
		SharedTierMode.Set(1)
		s.logger.Info().Msg("redis reachable again, shared tier back in remote mode")
	}
	return nil
}

// Stats returns an operation count snapshot covering the remote path and the
// in-process fallback together.
func (s *RedisStore) Stats() TierStats {
	remote := s.counters.snapshot()
	fb := s.fallback.Stats()
	return TierStats{
		Hits:   remote.Hits + fb.Hits,
		Misses: remote.Misses + fb.Misses,
		Sets:   remote.Sets + fb.Sets,
		Errors: remote.Errors + fb.Errors,
	}
}
