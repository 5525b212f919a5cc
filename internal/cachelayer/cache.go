// Package cachelayer implements a tenant-scoped, TTL read-through
// cache that degrades to pass-through (never errors) when no backing
// store is configured.
package cachelayer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Store is the backing persistence a Cache may sit in front of. A nil
// Store means pass-through mode: every Get misses, every Set is a
// no-op, nothing ever errors.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore is a TTL-windowed in-memory Store, grounded on
// pkg/ratelimit/store_memory.go's record-with-expiry shape.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]memEntry
}

type memEntry struct {
	value   []byte
	expires time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]memEntry{}}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.data[key]
	if !ok || time.Now().After(e.expires) {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = memEntry{value: value, expires: time.Now().Add(ttl)}
	return nil
}

// Delete removes key, matching the usage-store's DeleteUsage shape.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Cache is the tenant-scoped read-through layer. Concurrent misses for
// the same key are de-duplicated with singleflight so a thundering
// herd of identical lookups only loads once.
type Cache struct {
	store Store
	group singleflight.Group
}

// NewCache wraps store. Passing a nil store makes the Cache a
// transparent pass-through, never erroring and always missing.
func NewCache(store Store) *Cache {
	return &Cache{store: store}
}

// TenantKey builds the fixed tenant-scoped key families:
// company:{tid}:priorities, company:{tid}:knowledge,
// company:{tid}:personality, qa:{tid}, ai-brain:{tid}:{hash}.
func TenantKey(prefix, tenantID string, parts ...string) string {
	key := fmt.Sprintf("%s:%s", prefix, tenantID)
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

// HashKey derives the {hash} suffix used by ai-brain:{tid}:{hash} keys
// from arbitrary cache-relevant content (e.g. a normalized query).
func HashKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Get reads key, treating a decode failure or absent store as a miss
// rather than an error, matching the degrade-to-pass-through rule.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.store == nil {
		return nil, false
	}
	value, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	return value, true
}

// Set writes key, silently doing nothing when no store is configured.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if c.store == nil {
		return
	}
	_ = c.store.Set(ctx, key, value, ttl)
}

// Invalidate deletes key, silently doing nothing when no store is
// configured. Used on tenant config reload to evict stale entries.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	if c.store == nil {
		return
	}
	_ = c.store.Delete(ctx, key)
}

// InvalidateTenant evicts the fixed cache-key families a tenant config
// reload can stale: company:{tid}:priorities, company:{tid}:knowledge,
// company:{tid}:personality, qa:{tid}.
func (c *Cache) InvalidateTenant(ctx context.Context, tenantID string) {
	for _, bucket := range []string{"priorities", "knowledge", "personality"} {
		c.Invalidate(ctx, TenantKey("company", tenantID, bucket))
	}
	c.Invalidate(ctx, TenantKey("qa", tenantID))
}

// GetOrLoad reads key, and on miss calls load exactly once even under
// concurrent callers for the same key, storing the result with ttl.
func (c *Cache) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if v, ok := c.Get(ctx, key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if v, ok := c.Get(ctx, key); ok {
			return v, nil
		}
		loaded, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, loaded, ttl)
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
