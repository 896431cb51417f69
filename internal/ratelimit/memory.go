package ratelimit

import (
	"context"
	"sync"
	"time"
)

// bucket is one fixed-window counter.
type bucket struct {
	count int64
	reset time.Time
}

// MemoryStore counts requests in process memory. All windows of one Take
// call are checked and incremented under a single lock, so a request is
// either charged against every window or none.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	// now is swappable for tests.
	now func() time.Time
}

// NewMemoryStore creates an in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Take implements Store.
func (s *MemoryStore) Take(ctx context.Context, key string, windows []Window) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	// Check all windows before incrementing any
	for _, w := range windows {
		b := s.bucketFor(key, w, now)
		if b.count >= w.Limit {
			return &Result{
				Allowed:    false,
				Window:     w.Name,
				RetryAfter: b.reset.Sub(now),
			}, nil
		}
	}

	for _, w := range windows {
		s.bucketFor(key, w, now).count++
	}

	return &Result{Allowed: true}, nil
}

// Add implements Store.
func (s *MemoryStore) Add(ctx context.Context, key string, window Window, n int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.bucketFor(key, window, s.now())
	b.count += n
	return b.count, nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key string, window Window) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b := s.bucketFor(key, window, now)
	return b.count, b.reset.Sub(now), nil
}

// Sweep implements Store.
func (s *MemoryStore) Sweep(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, b := range s.buckets {
		if !now.Before(b.reset) {
			delete(s.buckets, key)
			removed++
		}
	}
	return removed
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

// bucketFor returns the live bucket for a key and window, recreating it
// lazily when the previous window has expired. Callers must hold the lock.
func (s *MemoryStore) bucketFor(key string, w Window, now time.Time) *bucket {
	full := key + ":" + w.Name

	b, ok := s.buckets[full]
	if !ok || !now.Before(b.reset) {
		b = &bucket{reset: now.Add(w.Duration)}
		s.buckets[full] = b
	}
	return b
}
