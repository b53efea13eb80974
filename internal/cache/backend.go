package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Backend is a TTL byte store for derived data (handler lists, app catalogue).
// Raw events live in EventCache instead.
type Backend interface {
	// Get retrieves a value from the cache
	// Returns (value, found, error)
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value in the cache with the given TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache
	Delete(ctx context.Context, key string) error

	// GetMultiple retrieves multiple values from the cache
	// Returns a map of found keys to values
	GetMultiple(ctx context.Context, keys []string) (map[string][]byte, error)

	// SetMultiple stores multiple values with the given TTL
	SetMultiple(ctx context.Context, items map[string][]byte, ttl time.Duration) error

	// Close closes the cache connection
	Close() error
}

// GetJSON loads and decodes a JSON value. A decode failure counts as a miss.
func GetJSON[T any](ctx context.Context, b Backend, key string) (T, bool, error) {
	var v T
	data, ok, err := b.Get(ctx, key)
	if err != nil || !ok {
		return v, false, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, nil
	}
	return v, true, nil
}

// SetJSON encodes and stores a JSON value.
func SetJSON[T any](ctx context.Context, b Backend, key string, v T, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Set(ctx, key, data, ttl)
}
