package rules

import (
	"sync"
	"time"
)

// InMemoryRulesCache is an in-memory RulesCache keyed by rule ID.
// Thread-safe for concurrent access
type InMemoryRulesCache struct {
	rules    map[string]*CompiledRule
	order    []string
	cachedAt time.Time
	config   CacheConfig
	mu       sync.RWMutex
	isValid  bool
}

// NewInMemoryRulesCache creates a new in-memory rules cache
func NewInMemoryRulesCache(config CacheConfig) *InMemoryRulesCache {
	return &InMemoryRulesCache{config: config}
}

// Get returns the cached compiled rule for id.
func (c *InMemoryRulesCache) Get(id string) (*CompiledRule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.validLocked() {
		return nil, false
	}
	cr, ok := c.rules[id]
	return cr, ok
}

// All returns the cached rules in the order they were set.
func (c *InMemoryRulesCache) All() []*CompiledRule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.validLocked() {
		return nil
	}
	out := make([]*CompiledRule, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.rules[id])
	}
	return out
}

// Set stores rules in cache
func (c *InMemoryRulesCache) Set(rules []*CompiledRule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rules = make(map[string]*CompiledRule, len(rules))
	c.order = make([]string, 0, len(rules))
	for _, cr := range rules {
		if _, dup := c.rules[cr.def.ID]; !dup {
			c.order = append(c.order, cr.def.ID)
		}
		c.rules[cr.def.ID] = cr
	}
	c.cachedAt = time.Now()
	c.isValid = true
}

// Invalidate clears the cache
func (c *InMemoryRulesCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.isValid = false
	c.rules = nil
	c.order = nil
}

// IsValid returns true if cache contains valid data
func (c *InMemoryRulesCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validLocked()
}

func (c *InMemoryRulesCache) validLocked() bool {
	if !c.isValid {
		return false
	}
	if c.config.TTL > 0 {
		return time.Since(c.cachedAt) <= c.config.TTL
	}
	return true
}
