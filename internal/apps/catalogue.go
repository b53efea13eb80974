package apps

import (
	"context"
	"log/slog"
	"sort"
	"strconv"

	"nostr-universe/internal/cache"
	"nostr-universe/internal/nips"
	"nostr-universe/internal/nostr"
	"nostr-universe/internal/types"
)

const (
	catalogueKey = "apps:catalogue"
	nonameApp    = "<Noname app>"
)

var nativePlatforms = map[string]bool{
	"android": true,
	"ios":     true,
	"windows": true,
	"macos":   true,
	"linux":   true,
}

// isWeb reports whether a handler's first platform tag is "web". Handlers
// without any platform tag count as web.
func isWeb(evt types.Event) bool {
	for _, tag := range evt.Tags {
		if len(tag) == 0 {
			continue
		}
		if tag[0] == "web" {
			return true
		}
		if nativePlatforms[tag[0]] {
			return false
		}
	}
	return true
}

// catalogueURL picks the web template that suits kind: npub or nprofile for
// profiles, naddr for parameterized kinds, else the first typed template.
func catalogueURL(evt types.Event, kind int) (types.AppURL, bool) {
	var first *types.AppURL
	for _, tag := range evt.TagsNamed("web") {
		if len(tag) < 3 {
			continue
		}
		u := types.AppURL{URL: tag[1], Type: tag[2]}
		if kind == nips.KindMetadata && (u.Type == "npub" || u.Type == "nprofile") {
			return u, true
		}
		if nips.IsParameterized(kind) && u.Type == "naddr" {
			return u, true
		}
		if first == nil {
			first = &u
		}
	}
	if first == nil {
		return types.AppURL{}, false
	}
	return *first, true
}

// FetchApps returns the catalogue of web apps, newest published first.
// Apps without a website are left out.
func (r *Resolver) FetchApps(ctx context.Context) ([]types.AppSummary, error) {
	if apps, ok, err := cache.GetJSON[[]types.AppSummary](ctx, r.backend, catalogueKey); err != nil {
		slog.Warn("apps: cache read failed", "key", catalogueKey, "error", err)
	} else if ok {
		r.metrics.CacheHit("catalogue")
		return apps, nil
	}
	r.metrics.CacheMiss("catalogue")

	v, err, _ := r.catalogueGroup.Do(catalogueKey, func() (interface{}, error) {
		fctx := context.WithoutCancel(ctx)
		apps, err := r.fetchCatalogue(fctx)
		if err != nil {
			return nil, err
		}
		if len(apps) > 0 {
			if err := cache.SetJSON(fctx, r.backend, catalogueKey, apps, r.cfg.CatalogueTTL); err != nil {
				slog.Warn("apps: cache write failed", "key", catalogueKey, "error", err)
			}
		}
		return apps, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]types.AppSummary(nil), v.([]types.AppSummary)...), nil
}

func (r *Resolver) fetchCatalogue(ctx context.Context) ([]types.AppSummary, error) {
	events, err := r.fetcher.FetchByFilter(ctx, types.Filter{
		Kinds: []int{nips.KindAppHandler},
		Limit: r.cfg.CatalogueLimit,
	})
	if err != nil {
		return nil, err
	}

	pubkeys := make([]string, 0, len(events))
	for _, evt := range events {
		pubkeys = append(pubkeys, evt.PubKey)
	}
	authors := r.fetcher.FetchProfiles(ctx, pubkeys)

	apps := make([]types.AppSummary, 0, len(events))
	for _, evt := range events {
		if !isWeb(evt) {
			continue
		}

		var profile *types.ProfileInfo
		if evt.Content != "" {
			p := nostr.ParseProfile(evt)
			profile = &p
		} else if author, ok := authors[evt.PubKey]; ok {
			profile = &author.Profile
		}

		s := types.AppSummary{
			Name:     nonameApp,
			Handlers: make(map[int]types.AppURL),
			Order:    publishedAt(evt),
		}
		s.Naddr, _ = nips.EncodeNAddr(evt.Kind, evt.PubKey, evt.Identifier(), nil)
		if profile != nil {
			if name := profile.BestName(); name != "" {
				s.Name = name
			}
			s.URL = profile.Website
			s.Picture = profile.Picture
			s.About = profile.About
		}

		for _, tag := range evt.TagsNamed("k") {
			if len(tag) < 2 {
				continue
			}
			k, err := strconv.Atoi(tag[1])
			if err != nil {
				continue
			}
			u, ok := catalogueURL(evt, k)
			if !ok {
				continue
			}
			if _, dup := s.Handlers[k]; !dup {
				s.Kinds = append(s.Kinds, k)
			}
			s.Handlers[k] = u
		}

		if s.URL == "" {
			continue
		}
		apps = append(apps, s)
	}

	sortSummaries(apps)
	slog.Debug("apps: catalogue built", "events", len(events), "apps", len(apps))
	return apps, nil
}

func publishedAt(evt types.Event) int64 {
	n, err := strconv.ParseInt(evt.TagValue("published_at"), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func sortSummaries(apps []types.AppSummary) {
	sort.SliceStable(apps, func(i, j int) bool { return apps[i].Order > apps[j].Order })
}
