// Package dnscache provides a thread-safe, TTL-based cache for raw MX and A
// lookups with singleflight deduplication for concurrent requests to the
// same name.
package dnscache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Source is the uncached lookup backend.
type Source interface {
	LookupMX(ctx context.Context, domain string) ([]string, error)
	LookupA(ctx context.Context, domain string) ([]string, error)
}

// Cache is a thread-safe DNS lookup cache in front of a Source.
// Concurrent lookups for the same name and type are deduplicated:
// only one actual DNS query is performed, and all waiters receive the result.
type Cache struct {
	mu       sync.Mutex
	entries  map[key]*entry
	cacheTTL time.Duration
	source   Source
}

type key struct {
	qtype  string
	domain string
}

type entry struct {
	records []string
	err     error
	expires time.Time
	done    chan struct{} // closed when lookup is complete
}

// New creates a DNS cache over source with the given cache TTL.
func New(source Source, cacheTTL time.Duration) *Cache {
	return &Cache{
		entries:  make(map[key]*entry),
		cacheTTL: cacheTTL,
		source:   source,
	}
}

// LookupMX returns raw MX values for the domain, using the cache when possible.
func (c *Cache) LookupMX(ctx context.Context, domain string) ([]string, error) {
	return c.lookup(ctx, key{"MX", domain}, c.source.LookupMX)
}

// LookupA returns raw A values for the domain, using the cache when possible.
func (c *Cache) LookupA(ctx context.Context, domain string) ([]string, error) {
	return c.lookup(ctx, key{"A", domain}, c.source.LookupA)
}

func (c *Cache) lookup(
	ctx context.Context, k key, fn func(context.Context, string) ([]string, error),
) ([]string, error) {
	for {
		c.mu.Lock()

		e, ok := c.entries[k]
		if ok {
			select {
			case <-e.done:
				// Completed entry - check if still valid
				if time.Now().Before(e.expires) {
					c.mu.Unlock()
					return copyRecords(e.records), e.err
				}
				// Expired, fall through to refresh
			default:
				// Lookup in progress - wait for it
				c.mu.Unlock()
				select {
				case <-e.done:
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				if isCallerAbort(e.err) && ctx.Err() == nil {
					// The leader gave up, not the nameserver; try again.
					continue
				}
				return copyRecords(e.records), e.err
			}
		}

		// Start new lookup
		e = &entry{done: make(chan struct{})}
		c.entries[k] = e
		c.mu.Unlock()

		e.records, e.err = fn(ctx, k.domain)
		e.expires = time.Now().Add(c.cacheTTL)
		if isCallerAbort(e.err) {
			e.expires = time.Now()
		}
		close(e.done)

		return copyRecords(e.records), e.err
	}
}

// isCallerAbort reports whether err comes from the caller's context rather
// than from the nameserver. Such results say nothing about the domain.
func isCallerAbort(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Len returns the number of entries in the cache (for diagnostics).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// copyRecords returns a copy so callers cannot mutate cached data.
func copyRecords(records []string) []string {
	if records == nil {
		return nil
	}
	out := make([]string, len(records))
	copy(out, records)
	return out
}
