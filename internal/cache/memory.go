package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v2"
)

// MemoryCache implements Backend on a concurrent map with lazy expiry.
type MemoryCache struct {
	data            *xsync.MapOf[string, memoryCacheEntry]
	maxSize         int
	cleanupInterval time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
}

type memoryCacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(maxSize int, cleanupInterval time.Duration) *MemoryCache {
	mc := &MemoryCache{
		data:            xsync.NewMapOf[memoryCacheEntry](),
		maxSize:         maxSize,
		cleanupInterval: cleanupInterval,
		stopCh:          make(chan struct{}),
	}
	go mc.cleanupLoop()
	return mc
}

func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, ok := m.data.Load(key)
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		m.data.Delete(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.data.Store(key, memoryCacheEntry{
		value:     append([]byte(nil), value...),
		expiresAt: time.Now().Add(ttl),
	})
	return nil
}

func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.data.Delete(key)
	return nil
}

func (m *MemoryCache) GetMultiple(ctx context.Context, keys []string) (map[string][]byte, error) {
	result := make(map[string][]byte)
	for _, key := range keys {
		if value, ok, _ := m.Get(ctx, key); ok {
			result[key] = value
		}
	}
	return result, nil
}

func (m *MemoryCache) SetMultiple(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	for key, value := range items {
		m.Set(ctx, key, value, ttl)
	}
	return nil
}

func (m *MemoryCache) Close() error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	return nil
}

func (m *MemoryCache) cleanupLoop() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *MemoryCache) cleanup() {
	now := time.Now()
	type liveEntry struct {
		key       string
		expiresAt time.Time
	}
	var entries []liveEntry

	m.data.Range(func(key string, entry memoryCacheEntry) bool {
		if now.After(entry.expiresAt) {
			m.data.Delete(key)
		} else {
			entries = append(entries, liveEntry{key, entry.expiresAt})
		}
		return true
	})

	// Enforce max size by removing the entries closest to expiry
	if m.maxSize > 0 && len(entries) > m.maxSize {
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].expiresAt.Before(entries[j].expiresAt)
		})
		for _, e := range entries[:len(entries)-m.maxSize] {
			m.data.Delete(e.key)
		}
	}
}
