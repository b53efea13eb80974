package stream

import (
	"context"
	"log/slog"
	"sync"

	"nostr-universe/internal/metrics"
	"nostr-universe/internal/nips"
	"nostr-universe/internal/nostr"
	"nostr-universe/internal/relay"
	"nostr-universe/internal/types"
)

// Transform turns a raw event into the value a channel delivers.
type Transform[T any] func(ctx context.Context, evt types.Event) (T, error)

// Channel is a restartable subscription for one category of events.
//
// Until the relays report the end of stored events, only the newest event
// per replaceable key is kept. At that point the kept events are delivered
// in first-arrival order; afterwards each new event is delivered if it is
// still the newest for its key when its turn in the queue comes. Older
// events are never delivered.
type Channel[T any] struct {
	label     string
	source    relay.Source
	relays    []string
	transform Transform[T]
	queue     *TaskQueue
	metrics   *metrics.Collector

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

func NewChannel[T any](label string, source relay.Source, relays []string, transform Transform[T], m *metrics.Collector) *Channel[T] {
	return &Channel[T]{
		label:     label,
		source:    source,
		relays:    relays,
		transform: transform,
		queue:     NewTaskQueue(),
		metrics:   m,
	}
}

// entry is the newest event seen for a key; seq identifies the arrival.
type entry struct {
	evt types.Event
	seq uint64
}

// working is the state of one subscription generation.
type working struct {
	mu    sync.Mutex
	keys  []string
	byKey map[string]entry
	seq   uint64
	eose  bool // only touched by queue tasks
}

// offer records evt unless the kept event for key is newer or is evt
// itself, as relayed by another relay. It returns the arrival's sequence
// number and whether it was kept.
func (w *working) offer(key string, evt types.Event) (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	old, ok := w.byKey[key]
	if ok && (old.evt.CreatedAt > evt.CreatedAt || old.evt.ID == evt.ID) {
		return 0, false
	}
	if !ok {
		w.keys = append(w.keys, key)
	}
	w.seq++
	w.byKey[key] = entry{evt: evt, seq: w.seq}
	return w.seq, true
}

func (w *working) isNewest(key string, seq uint64) (types.Event, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.byKey[key]
	return e.evt, ok && e.seq == seq
}

func (w *working) snapshot() []types.Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]types.Event, 0, len(w.keys))
	for _, k := range w.keys {
		out = append(out, w.byKey[k].evt)
	}
	return out
}

// Restart replaces the channel's subscription with one for filter. Work
// still queued for the previous subscription is discarded.
func (c *Channel[T]) Restart(ctx context.Context, filter types.Filter, callback func(T)) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	gen := c.gen
	subCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	msgs, err := c.source.Stream(subCtx, c.relays, filter)
	if err != nil {
		cancel()
		return err
	}

	slog.Debug("stream: started", "channel", c.label, "generation", gen)
	w := &working{byKey: make(map[string]entry)}
	go c.consume(subCtx, gen, w, msgs, callback)
	return nil
}

// Stop ends the current subscription.
func (c *Channel[T]) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
}

// Close stops the channel and its queue. The channel cannot be restarted.
func (c *Channel[T]) Close() {
	c.Stop()
	c.queue.Close()
}

func (c *Channel[T]) current(ctx context.Context, gen uint64) bool {
	if ctx.Err() != nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

func (c *Channel[T]) consume(ctx context.Context, gen uint64, w *working, msgs <-chan relay.Message, callback func(T)) {
	for m := range msgs {
		if !c.current(ctx, gen) {
			continue
		}
		switch m.Type {
		case relay.MessageEvent:
			key := nips.ReplaceableKey(m.Event)
			seq, ok := w.offer(key, m.Event)
			if !ok {
				c.metrics.RecordDroppedEvent("stale")
				continue
			}
			c.queue.Push(func() {
				if !w.eose || !c.current(ctx, gen) {
					return
				}
				if evt, ok := w.isNewest(key, seq); ok {
					c.deliver(ctx, evt, callback, "live")
				}
			})
		case relay.MessageEOSE:
			c.queue.Push(func() {
				if w.eose || !c.current(ctx, gen) {
					return
				}
				w.eose = true
				stored := w.snapshot()
				slog.Debug("stream: end of stored events", "channel", c.label, "events", len(stored))
				for _, evt := range stored {
					if !c.current(ctx, gen) {
						return
					}
					c.deliver(ctx, evt, callback, "stored")
				}
			})
		}
	}
}

func (c *Channel[T]) deliver(ctx context.Context, evt types.Event, callback func(T), typ string) {
	v, err := c.transform(ctx, evt.Clone())
	if err != nil {
		slog.Debug("stream: transform failed", "channel", c.label, "id", nostr.ShortID(evt.ID), "error", err)
		return
	}
	c.metrics.RecordDelivery(c.label, typ)
	callback(v)
}
