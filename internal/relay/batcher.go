package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Batcher coalesces key lookups that arrive within one window into a
// single upstream call. Lookups for [a,b,c], [a,d] and [b,e] made close
// together cost one fetch of [a,b,c,d,e]; each caller gets back only the
// keys it asked for.
type Batcher[V any] struct {
	name    string
	fetch   func(ctx context.Context, keys []string) map[string]V
	window  time.Duration
	maxKeys int
	timeout time.Duration

	mu   sync.Mutex
	open *batch[V] // collecting, nil when idle
}

type batch[V any] struct {
	keys     map[string]struct{}
	requests []lookup[V]
	timer    *time.Timer
}

type lookup[V any] struct {
	keys  []string
	reply chan map[string]V
}

// NewBatcher returns a Batcher. fetch runs detached from the callers'
// contexts and is bounded by timeout. A batch is flushed when window
// elapses or, if maxKeys > 0, once it holds maxKeys distinct keys.
func NewBatcher[V any](name string, fetch func(ctx context.Context, keys []string) map[string]V, window time.Duration, maxKeys int, timeout time.Duration) *Batcher[V] {
	return &Batcher[V]{
		name:    name,
		fetch:   fetch,
		window:  window,
		maxKeys: maxKeys,
		timeout: timeout,
	}
}

// Load returns the values found for keys. Missing keys are absent from the
// map; a cancelled ctx yields nil while the batch carries on for others.
func (b *Batcher[V]) Load(ctx context.Context, keys []string) map[string]V {
	if len(keys) == 0 {
		return nil
	}
	req := lookup[V]{keys: keys, reply: make(chan map[string]V, 1)}

	b.mu.Lock()
	cur := b.open
	if cur == nil {
		cur = &batch[V]{keys: make(map[string]struct{})}
		cur.timer = time.AfterFunc(b.window, func() { b.flush(cur) })
		b.open = cur
	}
	for _, k := range keys {
		cur.keys[k] = struct{}{}
	}
	cur.requests = append(cur.requests, req)
	full := b.maxKeys > 0 && len(cur.keys) >= b.maxKeys
	b.mu.Unlock()

	if full {
		go b.flush(cur)
	}

	select {
	case res := <-req.reply:
		return res
	case <-ctx.Done():
		return nil
	}
}

// flush closes cur for new lookups and answers its requests. It is a no-op
// for a batch that was already flushed.
func (b *Batcher[V]) flush(cur *batch[V]) {
	b.mu.Lock()
	if b.open != cur {
		b.mu.Unlock()
		return
	}
	b.open = nil
	cur.timer.Stop()
	b.mu.Unlock()

	keys := make([]string, 0, len(cur.keys))
	for k := range cur.keys {
		keys = append(keys, k)
	}
	slog.Debug("batcher: flush", "name", b.name, "keys", len(keys), "requests", len(cur.requests))

	ctx := context.Background()
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	found := b.fetch(ctx, keys)

	for _, req := range cur.requests {
		res := make(map[string]V, len(req.keys))
		for _, k := range req.keys {
			if v, ok := found[k]; ok {
				res[k] = v
			}
		}
		req.reply <- res
	}
}

// Pending reports the distinct keys and lookups waiting in the open batch.
func (b *Batcher[V]) Pending() (keys, lookups int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open == nil {
		return 0, 0
	}
	return len(b.open.keys), len(b.open.requests)
}
