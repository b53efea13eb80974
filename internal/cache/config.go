package cache

import "time"

// CacheConfig holds cache TTL configuration
type CacheConfig struct {
	KindAppsTTL     time.Duration // handler info per event kind
	CatalogueTTL    time.Duration // top apps list
	MemoryMaxSize   int
	CleanupInterval time.Duration
	KeyPrefix       string
}

// DefaultCacheConfig returns sensible defaults
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		KindAppsTTL:     30 * time.Minute, // handlers are announced rarely
		CatalogueTTL:    10 * time.Minute,
		MemoryMaxSize:   10000,
		CleanupInterval: time.Minute,
		KeyPrefix:       "universe:",
	}
}
