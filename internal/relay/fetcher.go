package relay

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"nostr-universe/internal/cache"
	"nostr-universe/internal/metrics"
	"nostr-universe/internal/nips"
	"nostr-universe/internal/nostr"
	"nostr-universe/internal/types"
)

// FetcherConfig holds relay sets and batching limits for a Fetcher.
type FetcherConfig struct {
	ReadRelays   []string
	SearchRelays []string
	MaxIDBatch   int // ids per network query
	MaxPubkeys   int // pubkeys per author/tag query
	BatchWindow  time.Duration
	BatchTimeout time.Duration
}

func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		ReadRelays: []string{
			"wss://relay.nostr.band",
			"wss://eden.nostr.land",
			"wss://nos.lol",
			"wss://relay.nostr.bg",
			"wss://nostr.mom",
		},
		SearchRelays: []string{"wss://relay.nostr.band"},
		MaxIDBatch:   200,
		MaxPubkeys:   200,
		BatchWindow:  20 * time.Millisecond,
		BatchTimeout: 10 * time.Second,
	}
}

// Fetcher is the cache-aware read path over a Source.
type Fetcher struct {
	source   Source
	cache    cache.Store
	cfg      FetcherConfig
	metrics  *metrics.Collector
	profiles *Batcher[types.ProfileEvent]
}

func NewFetcher(source Source, store cache.Store, cfg FetcherConfig, m *metrics.Collector) *Fetcher {
	if cfg.MaxIDBatch <= 0 {
		cfg.MaxIDBatch = 200
	}
	if cfg.MaxPubkeys <= 0 {
		cfg.MaxPubkeys = 200
	}
	f := &Fetcher{source: source, cache: store, cfg: cfg, metrics: m}
	f.profiles = NewBatcher("profiles", f.fetchProfilesDirect, cfg.BatchWindow, cfg.MaxPubkeys, cfg.BatchTimeout)
	return f
}

// Source returns the underlying network source.
func (f *Fetcher) Source() Source {
	return f.source
}

// Cache returns the event store the fetcher writes through.
func (f *Fetcher) Cache() cache.Store {
	return f.cache
}

// FetchByFilter queries the read relays and writes every result to the cache.
func (f *Fetcher) FetchByFilter(ctx context.Context, filter types.Filter) ([]types.Event, error) {
	return f.fetchFrom(ctx, f.cfg.ReadRelays, filter, "filter")
}

func (f *Fetcher) fetchFrom(ctx context.Context, relays []string, filter types.Filter, op string) ([]types.Event, error) {
	start := time.Now()
	events, err := f.source.Fetch(ctx, relays, filter)
	f.metrics.RecordFetch(op, time.Since(start), len(events))
	if err != nil {
		return nil, err
	}
	for _, evt := range events {
		f.cache.PutIfNewer(evt)
	}
	return events, nil
}

// Dedupe keeps the newest event per replaceable key. Ties keep the first
// seen; output follows the first-seen order of keys.
func Dedupe(events []types.Event) []types.Event {
	index := make(map[string]int, len(events))
	out := make([]types.Event, 0, len(events))
	for _, evt := range events {
		key := nips.ReplaceableKey(evt)
		if i, ok := index[key]; ok {
			if out[i].CreatedAt < evt.CreatedAt {
				out[i] = evt
			}
			continue
		}
		index[key] = len(out)
		out = append(out, evt)
	}
	return out
}

// Collect runs every filter concurrently against the read relays, drops
// failed legs and dedupes the union.
func (f *Fetcher) Collect(ctx context.Context, filters ...types.Filter) []types.Event {
	results := make([][]types.Event, len(filters))
	var wg sync.WaitGroup
	for i, filter := range filters {
		wg.Add(1)
		go func(i int, filter types.Filter) {
			defer wg.Done()
			events, err := f.FetchByFilter(ctx, filter)
			if err != nil {
				slog.Debug("fetcher: collect leg failed", "error", err)
				return
			}
			results[i] = events
		}(i, filter)
	}
	wg.Wait()

	var all []types.Event
	for _, r := range results {
		all = append(all, r...)
	}
	return Dedupe(all)
}

// FetchByIDs returns cached events whose id and kind match, then fetches the
// misses in batches of MaxIDBatch. Results are newest first. The error is
// set only when every network batch failed; cached results are still returned.
func (f *Fetcher) FetchByIDs(ctx context.Context, ids []string, kinds []int) ([]types.Event, error) {
	var results []types.Event
	var missing []string
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if evt, ok := f.cache.Get(id); ok {
			f.metrics.CacheHit("events")
			if len(kinds) == 0 || slices.Contains(kinds, evt.Kind) {
				results = append(results, evt)
			}
			continue
		}
		f.metrics.CacheMiss("events")
		missing = append(missing, id)
	}

	var fetchErr error
	if len(missing) > 0 {
		var (
			mu       sync.Mutex
			wg       sync.WaitGroup
			failures int
			batches  int
		)
		for start := 0; start < len(missing); start += f.cfg.MaxIDBatch {
			end := min(start+f.cfg.MaxIDBatch, len(missing))
			batch := missing[start:end]
			batches++
			wg.Add(1)
			go func(batch []string) {
				defer wg.Done()
				events, err := f.fetchFrom(ctx, f.cfg.ReadRelays, types.Filter{IDs: batch, Kinds: kinds}, "ids")
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failures++
					fetchErr = err
					return
				}
				for _, evt := range events {
					if slices.Contains(batch, evt.ID) {
						results = append(results, evt)
					}
				}
			}(batch)
		}
		wg.Wait()
		if failures < batches {
			fetchErr = nil
		}
	}

	SortDesc(results)
	return results, fetchErr
}

// FetchByAddress resolves a pointer to its current event. Bare hex ids are
// ambiguous, so a kind 0 query with the id as author runs alongside.
func (f *Fetcher) FetchByAddress(ctx context.Context, ptr nips.Pointer) (types.Event, error) {
	filter := ptr.Filter()
	if len(filter.IDs) == 0 && len(filter.Authors) == 0 {
		return types.Event{}, fmt.Errorf("empty address: %w", ErrEventNotFound)
	}

	if evt, ok := f.cache.GetByAddress(ptr.CacheKey()); ok {
		f.metrics.CacheHit("address")
		return evt, nil
	}
	if ptr.EventID != "" {
		if evt, ok := f.cache.Get(ptr.EventID); ok {
			f.metrics.CacheHit("address")
			return evt, nil
		}
	}
	f.metrics.CacheMiss("address")

	filters := []types.Filter{filter}
	if ptr.Hex && ptr.EventID != "" {
		filters = append(filters, types.Filter{Kinds: []int{nips.KindMetadata}, Authors: []string{ptr.EventID}})
	}

	events := f.Collect(ctx, filters...)
	if len(events) == 0 {
		return types.Event{}, fmt.Errorf("fetch %s: %w", ptr.CacheKey(), ErrEventNotFound)
	}
	f.cache.PutIfNewer(events[0])
	return events[0], nil
}

// FetchProfiles returns parsed profiles by pubkey, cache first. Misses from
// concurrent callers are merged into one kind 0 query.
func (f *Fetcher) FetchProfiles(ctx context.Context, pubkeys []string) map[string]types.ProfileEvent {
	found := make(map[string]types.ProfileEvent, len(pubkeys))
	var missing []string
	for _, pk := range pubkeys {
		if _, ok := found[pk]; ok || pk == "" {
			continue
		}
		if p, ok := f.cache.GetProfile(pk); ok {
			f.metrics.CacheHit("profiles")
			found[pk] = p
			continue
		}
		if !slices.Contains(missing, pk) {
			f.metrics.CacheMiss("profiles")
			missing = append(missing, pk)
		}
	}

	if len(missing) > 0 {
		for pk, p := range f.profiles.Load(ctx, missing) {
			found[pk] = p
		}
	}
	return found
}

func (f *Fetcher) fetchProfilesDirect(ctx context.Context, pubkeys []string) map[string]types.ProfileEvent {
	out := make(map[string]types.ProfileEvent, len(pubkeys))
	for start := 0; start < len(pubkeys); start += f.cfg.MaxPubkeys {
		end := min(start+f.cfg.MaxPubkeys, len(pubkeys))
		events, err := f.fetchFrom(ctx, f.cfg.ReadRelays, types.Filter{
			Kinds:   []int{nips.KindMetadata},
			Authors: pubkeys[start:end],
		}, "profiles")
		if err != nil {
			slog.Debug("fetcher: profile fetch failed", "count", end-start, "error", err)
			continue
		}
		for _, evt := range Dedupe(events) {
			if p, ok := f.cache.GetProfile(evt.PubKey); ok {
				out[evt.PubKey] = p
			} else {
				out[evt.PubKey] = types.NewProfileEvent(evt, nostr.ParseProfile(evt))
			}
		}
	}
	return out
}

// PubkeyQuery selects events of one kind by or about a set of pubkeys.
type PubkeyQuery struct {
	Kind        int
	Pubkeys     []string
	Tagged      bool // match #p instead of authors
	Limit       int
	Identifiers []string // optional #d
}

// FetchPubkeyEvents runs q against the read relays, newest first, cropped
// to the limit.
func (f *Fetcher) FetchPubkeyEvents(ctx context.Context, q PubkeyQuery) ([]types.Event, error) {
	pubkeys := q.Pubkeys
	if len(pubkeys) > f.cfg.MaxPubkeys {
		pubkeys = pubkeys[:f.cfg.MaxPubkeys]
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 30
	}

	filter := types.Filter{Kinds: []int{q.Kind}, Limit: limit}
	if q.Tagged {
		filter.PTags = pubkeys
	} else {
		filter.Authors = pubkeys
	}
	if len(q.Identifiers) > 0 {
		filter.DTags = q.Identifiers
	}

	events, err := f.FetchByFilter(ctx, filter)
	if err != nil {
		return nil, err
	}
	events = Dedupe(events)
	SortDesc(events)
	return Crop(events, limit), nil
}

// Search runs a full text query on the search relays.
func (f *Fetcher) Search(ctx context.Context, query string, kind, limit int) ([]types.Event, error) {
	if limit <= 0 {
		limit = 30
	}
	events, err := f.fetchFrom(ctx, f.cfg.SearchRelays, types.Filter{
		Kinds:  []int{kind},
		Search: query,
		Limit:  limit,
	}, "search")
	if err != nil {
		return nil, err
	}
	events = Dedupe(events)
	SortDesc(events)
	return Crop(events, limit), nil
}

// SortDesc orders events newest first; equal timestamps keep their order.
func SortDesc(events []types.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt > events[j].CreatedAt
	})
}

// Crop truncates s to at most limit items; limit <= 0 keeps everything.
func Crop[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}
