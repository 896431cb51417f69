package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/answergrid/answergrid/internal/pkg/errors"
)

// KV is the storage behind the exact cache tier.
type KV interface {
	// Get returns the value for a key, or ok=false when absent or
	// expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with a TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Close releases resources.
	Close() error
}

// memoryKV is an in-process KV with TTL expiry.
type memoryKV struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	stop    chan struct{}
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryKV creates an in-memory KV. A background janitor reclaims
// expired entries once a minute.
func NewMemoryKV() KV {
	kv := &memoryKV{
		entries: make(map[string]memoryEntry),
		stop:    make(chan struct{}),
	}
	go kv.janitor()
	return kv
}

func (kv *memoryKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	kv.mu.RLock()
	entry, ok := kv.entries[key]
	kv.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (kv *memoryKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	kv.mu.Lock()
	kv.entries[key] = memoryEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	kv.mu.Unlock()
	return nil
}

func (kv *memoryKV) Close() error {
	close(kv.stop)
	return nil
}

func (kv *memoryKV) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			kv.mu.Lock()
			for key, entry := range kv.entries {
				if now.After(entry.expiresAt) {
					delete(kv.entries, key)
				}
			}
			kv.mu.Unlock()
		case <-kv.stop:
			return
		}
	}
}

// redisKV is a Redis-backed KV so exact cache hits are shared across
// replicas.
type redisKV struct {
	client *redis.Client
}

// NewRedisKV connects to Redis and verifies the connection.
func NewRedisKV(ctx context.Context, redisURL string) (KV, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(errors.CodeValidation, "invalid redis url", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(errors.CodeUnavailable, "failed to connect to redis", err)
	}

	return &redisKV{client: client}, nil
}

func (kv *redisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := kv.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (kv *redisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return kv.client.Set(ctx, key, value, ttl).Err()
}

func (kv *redisKV) Close() error {
	return kv.client.Close()
}
