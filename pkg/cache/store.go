package cache

import (
	"context"
	"errors"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is a single cache tier. The Manager treats both tiers through this
// interface and stays agnostic to the engine behind each.
//
// Implementations return ErrCacheMiss for absent and for expired keys alike;
// absence is the only negative signal a read needs.
type Store interface {
	// Name identifies the tier in logs, metrics and health reports.
	Name() string

	// Get returns the live entry stored under key, or ErrCacheMiss.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set stores the entry under entry.Key for the entry's remaining TTL.
	Set(ctx context.Context, entry *Entry) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Clear drops every entry owned by the store.
	Clear(ctx context.Context) error

	// HealthCheck reports whether the tier is operational.
	HealthCheck(ctx context.Context) error
}
