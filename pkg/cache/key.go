package cache

import "strings"

// staleSuffix marks the long-lived backup copy of a key, read when a data
// point's provider chain is exhausted.
const staleSuffix = "_stale"

// Key builds a deterministic cache key from its parts, joined with
// underscores. The gateway convention is domain, provider, window:
//
//	cache.Key("price", "binance", "realtime") // "price_binance_realtime"
//
// Empty parts are dropped; the remainder is lowercased with spaces collapsed
// to underscores so config-supplied names stay deterministic.
func Key(parts ...string) string {
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		part = strings.ToLower(strings.ReplaceAll(part, " ", "_"))
		clean = append(clean, part)
	}
	return strings.Join(clean, "_")
}

// StaleKey returns the key holding the stale backup copy of key.
func StaleKey(key string) string {
	return key + staleSuffix
}

// IsStaleKey reports whether key names a stale backup copy.
func IsStaleKey(key string) bool {
	return strings.HasSuffix(key, staleSuffix)
}
