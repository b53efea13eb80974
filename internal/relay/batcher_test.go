package relay

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBatcherMergesOverlappingRequests(t *testing.T) {
	var calls atomic.Int32
	var mu sync.Mutex
	var seen []string

	b := NewBatcher("test", func(ctx context.Context, keys []string) map[string]int {
		calls.Add(1)
		mu.Lock()
		seen = append(seen, keys...)
		mu.Unlock()
		out := make(map[string]int, len(keys))
		for _, k := range keys {
			out[k] = len(k)
		}
		return out
	}, 50*time.Millisecond, 0, time.Second)

	requests := [][]string{{"a", "bb", "ccc"}, {"a", "dddd"}, {"bb", "eeeee"}}
	results := make([]map[string]int, len(requests))
	var wg sync.WaitGroup
	for i, keys := range requests {
		wg.Add(1)
		go func(i int, keys []string) {
			defer wg.Done()
			results[i] = b.Load(context.Background(), keys)
		}(i, keys)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	sort.Strings(seen)
	assert.Equal(t, []string{"a", "bb", "ccc", "dddd", "eeeee"}, seen)
	assert.Equal(t, map[string]int{"a": 1, "dddd": 4}, results[1])
}

func TestBatcherMaxBatchFlushesEarly(t *testing.T) {
	b := NewBatcher("test", func(ctx context.Context, keys []string) map[string]bool {
		out := make(map[string]bool, len(keys))
		for _, k := range keys {
			out[k] = true
		}
		return out
	}, time.Hour, 2, time.Second)

	done := make(chan map[string]bool, 1)
	go func() { done <- b.Load(context.Background(), []string{"x", "y"}) }()

	select {
	case got := <-done:
		assert.Equal(t, map[string]bool{"x": true, "y": true}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("batch was not flushed at max size")
	}
	keys, lookups := b.Pending()
	assert.Zero(t, keys)
	assert.Zero(t, lookups)
}

func TestBatcherRespectsCallerContext(t *testing.T) {
	b := NewBatcher("test", func(ctx context.Context, keys []string) map[string]int {
		return nil
	}, time.Hour, 0, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Nil(t, b.Load(ctx, []string{"k"}))
}

func TestBatcherStartsNewBatchAfterFlush(t *testing.T) {
	var calls atomic.Int32
	b := NewBatcher("test", func(ctx context.Context, keys []string) map[string]int {
		calls.Add(1)
		return map[string]int{keys[0]: 1}
	}, 5*time.Millisecond, 0, time.Second)

	assert.Equal(t, map[string]int{"a": 1}, b.Load(context.Background(), []string{"a"}))
	assert.Equal(t, map[string]int{"b": 1}, b.Load(context.Background(), []string{"b"}))
	assert.Equal(t, int32(2), calls.Load())
}
