package cache

import (
	"fmt"
	"time"
)

// Strategy maps an access pattern to a cache TTL.
// The zero value behaves like Default.
type Strategy struct {
	name string
	ttl  time.Duration
}

// Named strategies ordered by freshness requirement. The TTL values are part
// of the gateway's behavioral contract and must not drift.
var (
	// RealTime is for current prices and other rapidly changing documents.
	RealTime = Strategy{name: "real_time", ttl: 30 * time.Second}

	// ShortTerm is for market overview documents refreshed every few minutes.
	ShortTerm = Strategy{name: "short_term", ttl: 300 * time.Second}

	// MediumTerm is for hourly aggregates such as sentiment indices.
	MediumTerm = Strategy{name: "medium_term", ttl: 3600 * time.Second}

	// LongTerm is for slow-moving documents and stale fallback copies.
	LongTerm = Strategy{name: "long_term", ttl: 10800 * time.Second}

	// Default applies when the caller does not pick a strategy.
	Default = Strategy{name: "default", ttl: 300 * time.Second}
)

// Custom creates a strategy with a caller-supplied TTL.
func Custom(ttl time.Duration) Strategy {
	return Strategy{name: "custom", ttl: ttl}
}

// TTL returns the time-to-live the strategy resolves to.
func (s Strategy) TTL() time.Duration {
	if s == (Strategy{}) {
		return Default.ttl
	}
	return s.ttl
}

// String returns the strategy name.
func (s Strategy) String() string {
	if s == (Strategy{}) {
		return Default.name
	}
	return s.name
}

// ParseStrategy resolves a configuration name to a named strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "", "default":
		return Default, nil
	case "real_time", "realtime":
		return RealTime, nil
	case "short_term":
		return ShortTerm, nil
	case "medium_term":
		return MediumTerm, nil
	case "long_term":
		return LongTerm, nil
	}
	return Strategy{}, fmt.Errorf("unknown cache strategy %q", name)
}
