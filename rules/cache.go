package rules

import "time"

// RulesCache caches the compiled set of active rules so runs do not hit the
// store on every request.
type RulesCache interface {
	// Get returns the cached rule for id, or false on a miss or expiry.
	Get(id string) (*CompiledRule, bool)

	// All returns every cached rule, or nil if the cache is not valid.
	All() []*CompiledRule

	// Set replaces the cached contents.
	Set(rules []*CompiledRule)

	// Invalidate clears the cache, forcing a refresh on next access.
	Invalidate()

	// IsValid returns true if cache has valid data
	IsValid() bool
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for cached entries.
	// Zero disables expiry; the cache is then only invalidated on mutations.
	TTL time.Duration
}

// DefaultCacheConfig returns the defaults for rule caching.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}
