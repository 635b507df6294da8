package repository

import (
	"sync"
	"time"

	"github.com/koustreak/TabRi/internal/tabular"
)

// indexCache holds per-field value→records lookup maps for one Repository.
//
// Consistency contract: every successful mutation drops the whole cache
// before the operation returns, so a FindBy issued after a write always
// observes the post-write state. The TTL is a second line of defense only —
// it bounds staleness against writers outside this process, which the
// invalidation hook cannot see.
type indexCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*indexEntry
}

type indexEntry struct {
	builtAt time.Time
	byValue map[string][]tabular.Record
}

func newIndexCache(ttl time.Duration, now func() time.Time) *indexCache {
	return &indexCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]*indexEntry),
	}
}

// lookup returns the records indexed under key for field, and whether a
// fresh index for that field exists at all.
func (c *indexCache) lookup(field, key string) ([]tabular.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[field]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.builtAt) > c.ttl {
		delete(c.entries, field)
		return nil, false
	}
	return e.byValue[key], true
}

// store replaces the index for field with a freshly built map.
func (c *indexCache) store(field string, byValue map[string][]tabular.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[field] = &indexEntry{builtAt: c.now(), byValue: byValue}
}

// invalidate drops every field index. Called after each successful mutation.
func (c *indexCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*indexEntry)
}
