// Package apps resolves which applications can open a Nostr address and
// builds the concrete url for each of them.
package apps

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"nostr-universe/internal/augment"
	"nostr-universe/internal/cache"
	"nostr-universe/internal/metrics"
	"nostr-universe/internal/nips"
	"nostr-universe/internal/relay"
	"nostr-universe/internal/types"
)

// Config holds query limits and cache lifetimes.
type Config struct {
	HandlerLimit   int
	CatalogueLimit int
	KindAppsTTL    time.Duration
	CatalogueTTL   time.Duration
}

func DefaultConfig() Config {
	cc := cache.DefaultCacheConfig()
	return Config{
		HandlerLimit:   50,
		CatalogueLimit: 200,
		KindAppsTTL:    cc.KindAppsTTL,
		CatalogueTTL:   cc.CatalogueTTL,
	}
}

// Resolver finds handlers per event kind. Non-empty results are cached per
// kind; concurrent misses for one kind share a single fetch.
type Resolver struct {
	fetcher *relay.Fetcher
	backend cache.Backend
	cfg     Config
	metrics *metrics.Collector

	kindGroup      singleflight.Group
	catalogueGroup singleflight.Group
}

func NewResolver(fetcher *relay.Fetcher, backend cache.Backend, cfg Config, m *metrics.Collector) *Resolver {
	if cfg.HandlerLimit <= 0 {
		cfg.HandlerLimit = 50
	}
	if cfg.CatalogueLimit <= 0 {
		cfg.CatalogueLimit = 200
	}
	return &Resolver{fetcher: fetcher, backend: backend, cfg: cfg, metrics: m}
}

func kindKey(kind int) string {
	return "apps:kind:" + strconv.Itoa(kind)
}

// ResolveAppsForAddress decodes address, learns the target kind from known
// or from the network when the address does not carry it, and returns the
// handlers for that kind with EventURL set for this address.
func (r *Resolver) ResolveAppsForAddress(ctx context.Context, address string, known *types.Event) (types.AppInfo, nips.Pointer, error) {
	addr, err := nips.Decode(address)
	if err != nil {
		return types.AppInfo{}, nips.Pointer{}, fmt.Errorf("resolve apps: %w", err)
	}
	ptr := nips.ToPointer(addr)

	if known != nil && !ptr.HasKind {
		ptr.Kind = known.Kind
		ptr.HasKind = true
	}
	if !ptr.HasKind {
		evt, err := r.fetcher.FetchByAddress(ctx, ptr)
		if err != nil {
			return types.AppInfo{}, ptr, fmt.Errorf("resolve apps: target event: %w", err)
		}
		ptr = ptr.Resolve(evt)
	}

	info, err := r.HandlersForKind(ctx, ptr.Kind)
	if err != nil {
		return types.AppInfo{}, ptr, fmt.Errorf("resolve apps for kind %d: %w", ptr.Kind, err)
	}

	out := info.Clone()
	for i := range out.Apps {
		for j := range out.Apps[i].Handlers {
			h := &out.Apps[i].Handlers[j]
			h.EventURL = ResolveURL(*h, ptr)
		}
	}
	for i := range out.Handlers {
		out.Handlers[i].EventURL = ResolveURL(out.Handlers[i], ptr)
	}
	return out, ptr, nil
}

// HandlersForKind returns the handler info for kind, cache first.
func (r *Resolver) HandlersForKind(ctx context.Context, kind int) (types.AppInfo, error) {
	key := kindKey(kind)
	if info, ok, err := cache.GetJSON[types.AppInfo](ctx, r.backend, key); err != nil {
		slog.Warn("apps: cache read failed", "key", key, "error", err)
	} else if ok {
		r.metrics.CacheHit("kind_apps")
		return info, nil
	}
	r.metrics.CacheMiss("kind_apps")

	v, err, shared := r.kindGroup.Do(key, func() (interface{}, error) {
		fctx := context.WithoutCancel(ctx)
		info, err := r.FetchHandlers(fctx, []int{kind})
		if err != nil {
			return nil, err
		}
		if len(info.Apps) > 0 {
			if err := cache.SetJSON(fctx, r.backend, key, info, r.cfg.KindAppsTTL); err != nil {
				slog.Warn("apps: cache write failed", "key", key, "error", err)
			}
		}
		return info, nil
	})
	if err != nil {
		return types.AppInfo{}, err
	}
	if shared {
		slog.Debug("singleflight: shared handler fetch", "kind", kind)
	}
	return v.(types.AppInfo).Clone(), nil
}

// FetchHandlers queries handler announcements for kinds along with their
// authors' profiles. No kinds means every handler.
func (r *Resolver) FetchHandlers(ctx context.Context, kinds []int) (types.AppInfo, error) {
	filter := types.Filter{Kinds: []int{nips.KindAppHandler}, Limit: r.cfg.HandlerLimit}
	for _, k := range kinds {
		filter.KTags = append(filter.KTags, strconv.Itoa(k))
	}
	events, err := r.fetcher.FetchByFilter(ctx, filter)
	if err != nil {
		return types.AppInfo{}, err
	}
	events = relay.Dedupe(events)

	pubkeys := make([]string, 0, len(events))
	for _, evt := range events {
		pubkeys = append(pubkeys, evt.PubKey)
	}
	for _, p := range r.fetcher.FetchProfiles(ctx, pubkeys) {
		events = append(events, p.Event)
	}

	info := augment.Handlers(events, kinds, "")
	slog.Debug("apps: fetched handlers", "kinds", kinds, "apps", len(info.Apps), "handlers", len(info.Handlers))
	return info, nil
}

// BestApps flattens info to one entry per app, taken from the app's first
// handler that can open the resolved address. Apps are ordered by their
// newest handler.
func BestApps(info types.AppInfo) []types.AppSummary {
	var out []types.AppSummary
	for _, app := range info.Apps {
		for _, h := range app.Handlers {
			if h.EventURL == "" {
				continue
			}
			s := types.AppSummary{
				Naddr: h.Naddr,
				Name:  app.AppID,
				URL:   h.EventURL,
				Kinds: h.Kinds,
				Order: h.Order,
			}
			if h.Profile != nil {
				if name := h.Profile.BestName(); name != "" {
					s.Name = name
				}
				s.Picture = h.Profile.Picture
				s.About = h.Profile.About
			}
			out = append(out, s)
			break
		}
	}
	sortSummaries(out)
	return out
}
