package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/tradewatch/market-gateway/pkg/logging"
)

// promotionTimeout bounds the background write that copies a shared-tier hit
// into the memory tier.
const promotionTimeout = 2 * time.Second

// ComputeFunc produces the value for a key on a cache miss.
type ComputeFunc func(ctx context.Context) (json.RawMessage, error)

// Health describes the cache layer's operational state. The layer counts as
// healthy as long as the memory tier works; a degraded shared tier is
// reported but non-fatal.
type Health struct {
	Status     string            `json:"status"` // "healthy", "degraded", "unhealthy"
	Components map[string]string `json:"components"`
}

// Manager coordinates the two cache tiers.
//
// Reads try the memory tier first, then the shared tier; a shared-tier hit
// is promoted into the memory tier without making the caller wait. Writes go
// to both tiers and succeed when at least one tier accepts the entry.
type Manager struct {
	l1     Store
	l2     Store // nil in single-tier mode
	sf     singleflight.Group
	stats  *Statistics
	logger zerolog.Logger
}

// NewManager wires the tiers together. l1 must not be nil; passing a nil l2
// puts the manager in single-tier mode.
func NewManager(l1, l2 Store) *Manager {
	if l1 == nil {
		panic("l1 store cannot be nil")
	}
	return &Manager{
		l1:     l1,
		l2:     l2,
		stats:  &Statistics{},
		logger: logging.NewLogger("cache"),
	}
}

// Get returns the cached value for key, trying the memory tier first.
// Returns ErrCacheMiss when neither tier holds a live entry; tier outages
// never surface here.
func (m *Manager) Get(ctx context.Context, key string) (json.RawMessage, error) {
	m.stats.totalRequests.Add(1)

	if entry, err := m.l1.Get(ctx, key); err == nil {
		m.stats.l1Hits.Add(1)
		return entry.Value, nil
	}

	if m.l2 == nil {
		m.stats.misses.Add(1)
		return nil, ErrCacheMiss
	}

	entry, err := m.l2.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			m.logger.Debug().Err(err).Str("key", key).Msg("shared tier read failed")
		}
		m.stats.misses.Add(1)
		return nil, ErrCacheMiss
	}

	m.stats.l2Hits.Add(1)
	m.promote(entry)
	return entry.Value, nil
}

// promote copies a shared-tier hit into the memory tier without blocking the
// read path. The entry keeps its original timestamps, so the copy can never
// outlive the original TTL. Failures are logged, not surfaced.
func (m *Manager) promote(entry *Entry) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), promotionTimeout)
		defer cancel()

		if err := m.l1.Set(ctx, entry); err != nil {
			m.logger.Debug().Err(err).Str("key", entry.Key).Msg("promotion to memory tier failed")
			return
		}
		m.stats.promotions.Add(1)
		CachePromotions.Inc()
	}()
}

// Set stores value under key with the Default strategy.
func (m *Manager) Set(ctx context.Context, key string, value json.RawMessage) error {
	return m.SetWithStrategy(ctx, key, value, Default)
}

// SetWithStrategy resolves the strategy to a TTL and writes the value to
// both tiers. The call succeeds when at least one tier accepts the write and
// fails only when both do.
func (m *Manager) SetWithStrategy(ctx context.Context, key string, value json.RawMessage, strategy Strategy) error {
	entry := NewEntry(key, value, strategy.TTL())

	l1Err := m.l1.Set(ctx, entry)
	if m.l2 == nil {
		if l1Err != nil {
			return fmt.Errorf("cache write: %w", l1Err)
		}
		return nil
	}

	l2Err := m.l2.Set(ctx, entry)
	if l1Err != nil && l2Err != nil {
		return fmt.Errorf("cache write failed on both tiers: %w", errors.Join(l1Err, l2Err))
	}
	if l1Err != nil {
		m.logger.Warn().Err(l1Err).Str("key", key).Msg("memory tier write failed")
	}
	if l2Err != nil {
		m.logger.Warn().Err(l2Err).Str("key", key).Msg("shared tier write failed")
	}
	return nil
}

// GetOrCompute returns the cached value for key or computes it.
//
// Callers racing on the same missing key share a single compute invocation:
// losers wait for the winner instead of recomputing, and the winner's value
// is written through SetWithStrategy before anyone unblocks. A compute error
// reaches every waiter and caches nothing.
func (m *Manager) GetOrCompute(ctx context.Context, key string, strategy Strategy, compute ComputeFunc) (json.RawMessage, error) {
	if compute == nil {
		return nil, fmt.Errorf("compute func cannot be nil")
	}

	if value, err := m.Get(ctx, key); err == nil {
		return value, nil
	}

	v, err, shared := m.sf.Do(key, func() (interface{}, error) {
		// another caller may have filled the key while this one queued
		if entry, err := m.l1.Get(ctx, key); err == nil {
			return entry.Value, nil
		}
		if m.l2 != nil {
			if entry, err := m.l2.Get(ctx, key); err == nil {
				return entry.Value, nil
			}
		}

		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if err := m.SetWithStrategy(ctx, key, value, strategy); err != nil {
			// the computed value still reaches the caller
			m.logger.Warn().Err(err).Str("key", key).Msg("caching computed value failed")
		}
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		SingleflightShared.Inc()
	}
	return v.(json.RawMessage), nil
}

// Remove deletes key from both tiers, tolerating a single tier's failure.
func (m *Manager) Remove(ctx context.Context, key string) error {
	l1Err := m.l1.Remove(ctx, key)
	if m.l2 == nil {
		if l1Err != nil {
			return fmt.Errorf("cache remove: %w", l1Err)
		}
		return nil
	}

	l2Err := m.l2.Remove(ctx, key)
	if l1Err != nil && l2Err != nil {
		return fmt.Errorf("cache remove failed on both tiers: %w", errors.Join(l1Err, l2Err))
	}
	if l1Err != nil || l2Err != nil {
		m.logger.Debug().AnErr("l1", l1Err).AnErr("l2", l2Err).Str("key", key).Msg("cache remove partially failed")
	}
	return nil
}

// Clear drops every entry from both tiers, tolerating a single tier's
// failure.
func (m *Manager) Clear(ctx context.Context) error {
	l1Err := m.l1.Clear(ctx)
	if m.l2 == nil {
		if l1Err != nil {
			return fmt.Errorf("cache clear: %w", l1Err)
		}
		return nil
	}

	l2Err := m.l2.Clear(ctx)
	if l1Err != nil && l2Err != nil {
		return fmt.Errorf("cache clear failed on both tiers: %w", errors.Join(l1Err, l2Err))
	}
	if l1Err != nil || l2Err != nil {
		m.logger.Debug().AnErr("l1", l1Err).AnErr("l2", l2Err).Msg("cache clear partially failed")
	}
	return nil
}

// HealthCheck reports the layer healthy when the memory tier works. Shared
// tier degradation downgrades the status to "degraded" and is logged.
func (m *Manager) HealthCheck(ctx context.Context) Health {
	h := Health{Status: "healthy", Components: map[string]string{}}

	if err := m.l1.HealthCheck(ctx); err != nil {
		h.Status = "unhealthy"
		h.Components[m.l1.Name()] = err.Error()
	} else {
		h.Components[m.l1.Name()] = "ok"
	}

	if m.l2 == nil {
		return h
	}
	if err := m.l2.HealthCheck(ctx); err != nil {
		if h.Status == "healthy" {
			h.Status = "degraded"
		}
		h.Components[m.l2.Name()] = err.Error()
		m.logger.Warn().Err(err).Msg("shared tier unhealthy")
	} else {
		h.Components[m.l2.Name()] = "ok"
	}
	return h
}

// Statistics returns a snapshot of the manager counters.
func (m *Manager) Statistics() StatisticsSnapshot {
	return m.stats.snapshot()
}
