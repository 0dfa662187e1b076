package cache

import "sync/atomic"

// Statistics accumulates manager-level counters. Increments are atomic; the
// hot path takes no locks for bookkeeping.
type Statistics struct {
	totalRequests atomic.Uint64
	l1Hits        atomic.Uint64
	l2Hits        atomic.Uint64
	misses        atomic.Uint64
	promotions    atomic.Uint64
}

// StatisticsSnapshot is a point-in-time copy of the manager counters.
type StatisticsSnapshot struct {
	TotalRequests uint64  `json:"total_requests"`
	L1Hits        uint64  `json:"l1_hits"`
	L2Hits        uint64  `json:"l2_hits"`
	Misses        uint64  `json:"misses"`
	Promotions    uint64  `json:"promotions"`
	HitRate       float64 `json:"hit_rate"`
}

func (s *Statistics) snapshot() StatisticsSnapshot {
	snap := StatisticsSnapshot{
		TotalRequests: s.totalRequests.Load(),
		L1Hits:        s.l1Hits.Load(),
		L2Hits:        s.l2Hits.Load(),
		Misses:        s.misses.Load(),
		Promotions:    s.promotions.Load(),
	}
	if snap.TotalRequests > 0 {
		snap.HitRate = float64(snap.L1Hits+snap.L2Hits) / float64(snap.TotalRequests)
	}
	return snap
}

// TierStats is an operation count snapshot for a single tier.
type TierStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Sets   uint64 `json:"sets"`
	Errors uint64 `json:"errors"`
}

// tierCounters accumulates per-tier operation counts.
type tierCounters struct {
	hits   atomic.Uint64
	misses atomic.Uint64
	sets   atomic.Uint64
	errors atomic.Uint64
}

func (c *tierCounters) snapshot() TierStats {
	return TierStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Sets:   c.sets.Load(),
		Errors: c.errors.Load(),
	}
}
