package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// MemoryCache is the in-process cache backend used for local development
// and every test in this repository — no live Redis is required in CI.
type MemoryCache struct {
	c *ristretto.Cache[string, string]
	// mu serialises Incr's read-modify-write; ristretto itself is safe for
	// concurrent use but doesn't offer atomic increment.
	mu sync.Mutex
}

// NewMemory builds a ristretto-backed cache sized for test/dev workloads.
func NewMemory() (*MemoryCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &MemoryCache{c: c}, nil
}

func (m *MemoryCache) Get(_ context.Context, key string) (string, bool) {
	v, ok := m.c.Get(key)
	return v, ok
}

func (m *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) {
	if ttl > 0 {
		m.c.SetWithTTL(key, value, 1, ttl)
	} else {
		m.c.Set(key, value, 1)
	}
	m.c.Wait()
}

func (m *MemoryCache) Delete(_ context.Context, key string) {
	m.c.Del(key)
}

func (m *MemoryCache) Exists(_ context.Context, key string) bool {
	_, ok := m.c.Get(key)
	return ok
}

func (m *MemoryCache) Incr(_ context.Context, key string, delta int64, ttl time.Duration) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := int64(0)
	if v, ok := m.c.Get(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cur = n
		}
	}
	cur += delta
	if ttl > 0 {
		m.c.SetWithTTL(key, strconv.FormatInt(cur, 10), 1, ttl)
	} else {
		m.c.Set(key, strconv.FormatInt(cur, 10), 1)
	}
	m.c.Wait()
	return cur, true
}
