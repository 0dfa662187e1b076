package aggregator

import "sync/atomic"

// Stats accumulates aggregation outcome counters.
type Stats struct {
	totalAggregations atomic.Uint64
	successful        atomic.Uint64
	partialFailures   atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of the aggregation counters.
type StatsSnapshot struct {
	TotalAggregations uint64 `json:"total_aggregations"`
	Successful        uint64 `json:"successful"`
	PartialFailures   uint64 `json:"partial_failures"`
}

func (s *Stats) snapshot() StatsSnapshot {
	return StatsSnapshot{
		TotalAggregations: s.totalAggregations.Load(),
		Successful:        s.successful.Load(),
		PartialFailures:   s.partialFailures.Load(),
	}
}
