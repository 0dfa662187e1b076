package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/tradewatch/market-gateway/pkg/logging"
)

// MemoryConfig configures the in-process cache tier.
type MemoryConfig struct {
	// MaxEntries bounds the number of entries held in memory. Insertion
	// beyond the bound evicts the least recently used entry.
	MaxEntries int

	// DefaultTTL is the engine-wide entry lifetime. Entries carrying a
	// shorter TTL of their own are removed earlier; entries carrying none
	// inherit it.
	DefaultTTL time.Duration

	// OnEvict, when set, observes every entry the engine drops.
	OnEvict func(key string, entry *Entry)
}

// DefaultMemoryConfig returns the memory tier defaults.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		MaxEntries: 10000,
		DefaultTTL: 5 * time.Minute,
	}
}

// MemoryStore is the in-process cache tier.
//
// The LRU engine bounds entry count and applies the engine-wide TTL; per-key
// TTLs shorter than that are approximated with deferred removal tasks. The
// entry's own expiry, checked on every read, stays authoritative either way.
// Get and Set never fail; a miss is the only negative signal.
type MemoryStore struct {
	lru      *expirable.LRU[string, *Entry]
	cfg      MemoryConfig
	name     string
	counters tierCounters
	logger   zerolog.Logger
}

// NewMemoryStore creates the in-process tier. Zero config fields fall back
// to DefaultMemoryConfig values.
func NewMemoryStore(cfg MemoryConfig) *MemoryStore {
	return newMemoryStore(cfg, layerMemory)
}

func newMemoryStore(cfg MemoryConfig, name string) *MemoryStore {
	defaults := DefaultMemoryConfig()
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaults.MaxEntries
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = defaults.DefaultTTL
	}

	s := &MemoryStore{
		cfg:    cfg,
		name:   name,
		logger: logging.NewLogger("cache"),
	}
	s.lru = expirable.NewLRU[string, *Entry](cfg.MaxEntries, s.onEvict, cfg.DefaultTTL)
	return s
}

// Name identifies the tier in logs, metrics and health reports.
func (s *MemoryStore) Name() string { return s.name }

// onEvict observes engine-driven removals (size pressure or engine TTL).
func (s *MemoryStore) onEvict(key string, entry *Entry) {
	CacheEvictions.WithLabelValues(s.name).Inc()
	s.logger.Debug().Str("key", key).Str("layer", s.name).Msg("entry evicted")
	if s.cfg.OnEvict != nil {
		s.cfg.OnEvict(key, entry)
	}
}

// Get returns the live entry stored under key, or ErrCacheMiss. Entries past
// their own expiry are removed lazily and reported as misses.
func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	entry, ok := s.lru.Get(key)
	if !ok {
		s.counters.misses.Add(1)
		CacheMisses.WithLabelValues(s.name).Inc()
		return nil, ErrCacheMiss
	}

	if entry.IsExpired() {
		s.lru.Remove(key)
		s.counters.misses.Add(1)
		CacheMisses.WithLabelValues(s.name).Inc()
		return nil, ErrCacheMiss
	}

	s.counters.hits.Add(1)
	CacheHits.WithLabelValues(s.name).Inc()
	return entry, nil
}

// Set stores the entry. Entries without a TTL inherit the engine default;
// entries with a shorter TTL get a deferred removal task scheduled for them.
// Scheduling is best effort and never blocks the caller.
func (s *MemoryStore) Set(_ context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	if entry.TTL <= 0 {
		clone := *entry
		clone.TTL = s.cfg.DefaultTTL
		entry = &clone
	}

	s.lru.Add(entry.Key, entry)
	s.counters.sets.Add(1)
	CacheSets.WithLabelValues(s.name).Inc()

	if remaining := entry.RemainingTTL(); remaining < s.cfg.DefaultTTL {
		s.scheduleRemoval(entry, remaining)
	}
	return nil
}

// scheduleRemoval drops the entry once its own TTL lapses. The task
// re-checks that the slot still holds the same entry, so an overwrite turns
// the pending task into a no-op.
func (s *MemoryStore) scheduleRemoval(entry *Entry, after time.Duration) {
	time.AfterFunc(after, func() {
		current, ok := s.lru.Peek(entry.Key)
		if !ok || current != entry {
			return
		}
		if current.IsExpired() {
			s.lru.Remove(entry.Key)
		}
	})
}

// Remove deletes key. Removing an absent key is not an error.
func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.lru.Remove(key)
	return nil
}

// Clear drops every entry.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.lru.Purge()
	return nil
}

// Len returns the number of entries currently held, including entries whose
// own TTL lapsed but which the engine has not reclaimed yet.
func (s *MemoryStore) Len() int {
	return s.lru.Len()
}

// HealthCheck always succeeds; the memory tier has no external dependency.
func (s *MemoryStore) HealthCheck(_ context.Context) error {
	return nil
}

// Stats returns an operation count snapshot for the tier.
func (s *MemoryStore) Stats() TierStats {
	return s.counters.snapshot()
}
