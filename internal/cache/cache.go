// Package cache implements the two-tier response cache: an exact tier
// keyed by a hash of the normalized query, and a semantic tier that
// matches paraphrased queries by embedding similarity.
//
// The cache is strictly best-effort. Lookup errors are treated as
// misses and write errors are counted but never surfaced, so a cache
// outage degrades latency, not availability.
package cache

import (
	"context"
	"time"

	"github.com/answergrid/answergrid/internal/pkg/logger"
)

// Backend names used in metrics.
const (
	BackendExact    = "exact"
	BackendSemantic = "semantic"
)

// Lookup identifies one cacheable query.
type Lookup struct {
	// Query is the raw query text.
	Query string

	// TopK is the retrieval depth requested.
	TopK int

	// Mode is the query mode ("answer" or "retrieval").
	Mode string

	// Namespace scopes entries to one tenant's collection. Entries
	// never cross namespaces.
	Namespace string
}

// Entry is a cached response payload.
type Entry struct {
	// Data is the serialized response.
	Data []byte `json:"data"`

	// CreatedAt is when the entry was written.
	CreatedAt time.Time `json:"created_at"`
}

// Hooks receives cache observability events. *metrics.Metrics satisfies
// this.
type Hooks interface {
	RecordCacheHit(backend string)
	RecordCacheMiss(backend string)
	ObserveCacheLookup(backend string, d time.Duration)
	RecordCacheWriteError(backend string)
}

// Tier is one cache layer.
type Tier interface {
	// Name returns the backend name for metrics.
	Name() string

	// Get returns the entry for a lookup, or ok=false on a miss.
	Get(ctx context.Context, l Lookup) (*Entry, bool, error)

	// Put stores an entry for a lookup.
	Put(ctx context.Context, l Lookup, e *Entry) error

	// Close releases tier resources.
	Close() error
}

const writeTimeout = 10 * time.Second

// Cache chains tiers in lookup order.
type Cache struct {
	tiers []Tier
	hooks Hooks
	log   *logger.Logger
}

// New creates a cache over the given tiers. Tiers are consulted in
// order, so the cheapest tier goes first.
func New(log *logger.Logger, hooks Hooks, tiers ...Tier) *Cache {
	return &Cache{
		tiers: tiers,
		hooks: hooks,
		log:   log,
	}
}

// Get consults each tier in order and returns the first hit along with
// the name of the tier that served it. Tier failures are logged and
// treated as misses.
func (c *Cache) Get(ctx context.Context, l Lookup) (*Entry, string, bool) {
	for _, tier := range c.tiers {
		start := time.Now()
		entry, ok, err := tier.Get(ctx, l)
		if c.hooks != nil {
			c.hooks.ObserveCacheLookup(tier.Name(), time.Since(start))
		}

		if err != nil {
			c.log.WithContext(ctx).WithError(err).Warn("cache lookup failed",
				"backend", tier.Name())
			if c.hooks != nil {
				c.hooks.RecordCacheMiss(tier.Name())
			}
			continue
		}

		if ok {
			if c.hooks != nil {
				c.hooks.RecordCacheHit(tier.Name())
			}
			return entry, tier.Name(), true
		}

		if c.hooks != nil {
			c.hooks.RecordCacheMiss(tier.Name())
		}
	}

	return nil, "", false
}

// Put writes the entry to every tier asynchronously. The caller's
// response is never delayed or failed by cache writes.
func (c *Cache) Put(ctx context.Context, l Lookup, e *Entry) {
	for _, tier := range c.tiers {
		go func(t Tier) {
			writeCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			defer cancel()

			if err := t.Put(writeCtx, l, e); err != nil {
				c.log.WithError(err).Warn("cache write failed", "backend", t.Name())
				if c.hooks != nil {
					c.hooks.RecordCacheWriteError(t.Name())
				}
			}
		}(tier)
	}
}

// Close closes all tiers.
func (c *Cache) Close() error {
	var firstErr error
	for _, tier := range c.tiers {
		if err := tier.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
