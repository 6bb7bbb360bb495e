package dedup

import (
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultTTL is how long a processed fingerprint suppresses redelivery.
	DefaultTTL = 24 * time.Hour

	// DefaultSweepThreshold is the entry count that triggers a full expiry
	// sweep on the next insert.
	DefaultSweepThreshold = 1000
)

// Fingerprint identifies a logical event occurrence for dedup purposes.
// Immutable once computed.
type Fingerprint string

// FromSubject derives a fingerprint from domain identity.
func FromSubject(subjectID, eventType string, eventTime time.Time) Fingerprint {
	return Fingerprint(fmt.Sprintf("%s|%s|%d", subjectID, eventType, eventTime.UnixMilli()))
}

// FromOffset derives a fingerprint from log position.
func FromOffset(topic string, partition int32, offset int64) Fingerprint {
	return Fingerprint(fmt.Sprintf("%s|%d|%d", topic, partition, offset))
}

// Cache is a bounded-lifetime record of processed event fingerprints. It is
// a guard rail against duplicate side effects from at-least-once delivery,
// not a durable ledger: presence implies the handler previously completed,
// absence proves nothing.
//
// Safe for concurrent use across partition workers.
type Cache struct {
	mu             sync.Mutex
	entries        map[Fingerprint]time.Time
	ttl            time.Duration
	sweepThreshold int
	now            func() time.Time
}

// Option configures the cache.
type Option func(*Cache)

// WithTTL overrides the retention window.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithSweepThreshold overrides the size bound that triggers a full sweep.
func WithSweepThreshold(n int) Option {
	return func(c *Cache) { c.sweepThreshold = n }
}

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a dedup cache with a 24h TTL and a 1000-entry sweep bound.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:        make(map[Fingerprint]time.Time),
		ttl:            DefaultTTL,
		sweepThreshold: DefaultSweepThreshold,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ShouldProcess reports whether no live record exists for the fingerprint.
// Expired records are removed lazily on lookup.
func (c *Cache) ShouldProcess(fp Fingerprint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	processedAt, ok := c.entries[fp]
	if !ok {
		return true
	}
	if c.now().Sub(processedAt) > c.ttl {
		delete(c.entries, fp)
		return true
	}
	return false
}

// MarkProcessed records the fingerprint. Call only after all side effects of
// the handler have durably committed; calling earlier turns a crash into a
// silently dropped event.
func (c *Cache) MarkProcessed(fp Fingerprint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[fp] = c.now()
	if len(c.entries) > c.sweepThreshold {
		c.sweep()
	}
}

// sweep removes all expired entries. Amortized O(n), triggered by size, not
// scheduled. Must be called holding c.mu.
func (c *Cache) sweep() {
	cutoff := c.now().Add(-c.ttl)
	for fp, processedAt := range c.entries {
		if processedAt.Before(cutoff) {
			delete(c.entries, fp)
		}
	}
}

// Len reports the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
