package aggregator

import (
	"encoding/json"

	"github.com/tradewatch/market-gateway/pkg/cache"
	"github.com/tradewatch/market-gateway/pkg/provider"
)

// DataPoint describes one independently resolved value in a summary.
type DataPoint struct {
	// Name identifies the point in results and logs.
	Name string

	// Key is the cache key fresh documents are stored under. The stale
	// twin lives under cache.StaleKey(Key).
	Key string

	// Strategy picks the TTL for fresh documents.
	Strategy cache.Strategy

	// Chain is the ordered provider fallback chain. The first fetcher is
	// the primary; later ones are tried only after earlier ones fail or
	// their circuit is open.
	Chain []provider.Fetcher

	// Placeholder is the neutral document served when the chain and the
	// stale copy are both exhausted.
	Placeholder json.RawMessage
}
