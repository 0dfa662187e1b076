package cache

import (
	"encoding/json"
	"time"
)

// Entry represents a single cached market data document.
// Entries are JSON-serializable so the shared tier can store them verbatim.
type Entry struct {
	// Key is the cache key the entry is stored under
	Key string `json:"key"`

	// Value is the cached document (opaque JSON)
	Value json.RawMessage `json:"value"`

	// InsertedAt is when the entry was written
	InsertedAt time.Time `json:"inserted_at"`

	// TTL is the entry lifetime relative to InsertedAt
	TTL time.Duration `json:"ttl"`
}

// NewEntry creates an entry stamped with the current time.
func NewEntry(key string, value json.RawMessage, ttl time.Duration) *Entry {
	return &Entry{
		Key:        key,
		Value:      value,
		InsertedAt: time.Now(),
		TTL:        ttl,
	}
}

// ExpiresAt returns the absolute expiry time of the entry.
func (e *Entry) ExpiresAt() time.Time {
	return e.InsertedAt.Add(e.TTL)
}

// IsExpired returns true if the entry is past its expiry time.
// No tier may serve an expired entry; this check is the authority,
// engine-level eviction only reclaims memory.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt())
}

// RemainingTTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) RemainingTTL() time.Duration {
	ttl := time.Until(e.ExpiresAt())
	if ttl < 0 {
		return 0
	}
	return ttl
}
