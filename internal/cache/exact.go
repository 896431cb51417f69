package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/answergrid/answergrid/internal/pkg/hash"
)

// ExactTier caches responses keyed by a hash of the normalized query,
// retrieval depth, and mode.
type ExactTier struct {
	kv  KV
	ttl time.Duration
}

// NewExactTier creates the exact cache tier over the given KV.
func NewExactTier(kv KV, ttl time.Duration) *ExactTier {
	return &ExactTier{
		kv:  kv,
		ttl: ttl,
	}
}

// Name implements Tier.
func (t *ExactTier) Name() string {
	return BackendExact
}

// Get implements Tier.
func (t *ExactTier) Get(ctx context.Context, l Lookup) (*Entry, bool, error) {
	data, ok, err := t.kv.Get(ctx, exactKey(l))
	if err != nil || !ok {
		return nil, false, err
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		// A corrupt entry is a miss, it will be overwritten
		return nil, false, nil
	}

	return &entry, true, nil
}

// Put implements Tier.
func (t *ExactTier) Put(ctx context.Context, l Lookup, e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return t.kv.Set(ctx, exactKey(l), data, t.ttl)
}

// Close implements Tier.
func (t *ExactTier) Close() error {
	return t.kv.Close()
}

// exactKey builds the storage key. The namespace prefix keeps tenants
// from ever sharing entries even when their queries collide.
func exactKey(l Lookup) string {
	return fmt.Sprintf("agcache:%s:%s", l.Namespace, hash.CacheKey(l.Query, l.TopK, l.Mode))
}
