package augment

import (
	"slices"
	"strconv"

	"nostr-universe/internal/nips"
	"nostr-universe/internal/nostr"
	"nostr-universe/internal/types"
)

// Platforms whose url tags are read from handler events.
var Platforms = []string{"web"}

// AddressTypes are the url template discriminators a handler may declare.
// The empty type matches any address.
var AddressTypes = []string{"", "npub", "note", "nevent", "nprofile", "naddr"}

const maxHandlerKind = 10000000

// HandlerKinds returns the unique valid kinds from a handler's "k" tags.
func HandlerKinds(evt types.Event) []int {
	var kinds []int
	for _, tag := range evt.TagsNamed("k") {
		if len(tag) < 2 {
			continue
		}
		k, err := strconv.Atoi(tag[1])
		if err != nil || k < 0 || k > maxHandlerKind {
			continue
		}
		if !slices.Contains(kinds, k) {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Handlers parses kind 31990 events into apps grouped by app id. Kind 0
// events among events supply profiles for handlers without content of
// their own. Handlers left with no kind after filtering by filterKinds are
// dropped. Handler order follows input order, first highest. Info.Meta is
// set to metaPubkey's profile when present.
func Handlers(events []types.Event, filterKinds []int, metaPubkey string) types.AppInfo {
	info := types.AppInfo{Apps: []types.App{}}

	metas := make(map[string]types.ProfileEvent)
	total := 0
	for _, evt := range events {
		switch evt.Kind {
		case nips.KindMetadata:
			if old, ok := metas[evt.PubKey]; ok && old.CreatedAt > evt.CreatedAt {
				continue
			}
			metas[evt.PubKey] = types.NewProfileEvent(evt.Clone(), nostr.ParseProfile(evt))
		case nips.KindAppHandler:
			total++
		}
	}
	if metaPubkey != "" {
		info.Meta = profileOf(metas, metaPubkey)
	}

	index := 0
	for _, evt := range events {
		if evt.Kind != nips.KindAppHandler {
			continue
		}
		order := int64(total - index)
		index++

		h := types.AppHandler{Event: evt.Clone(), Order: order}
		h.Naddr, _ = nips.EncodeNAddr(evt.Kind, evt.PubKey, evt.Identifier(), nil)
		h.Meta = profileOf(metas, evt.PubKey)
		h.InheritedProfile = evt.Content == ""
		if h.InheritedProfile {
			if h.Meta != nil {
				p := h.Meta.Profile
				h.Profile = &p
			}
		} else {
			p := nostr.ParseProfile(evt)
			h.Profile = &p
		}

		h.Kinds = HandlerKinds(evt)
		if len(filterKinds) > 0 {
			h.Kinds = slices.DeleteFunc(h.Kinds, func(k int) bool { return !slices.Contains(filterKinds, k) })
		}
		if len(h.Kinds) == 0 {
			continue
		}

		h.URLs, h.Platforms = handlerURLs(evt)

		h.AppID = evt.Identifier()
		if evt.Content != "" {
			h.AppID = ""
			if h.Profile != nil {
				h.AppID = h.Profile.Name
				if h.AppID == "" {
					h.AppID = h.Profile.DisplayName
				}
			}
		}

		app := info.App(h.AppID)
		if app == nil {
			info.Apps = append(info.Apps, types.App{AppID: h.AppID})
			app = &info.Apps[len(info.Apps)-1]
		}
		app.Handlers = append(app.Handlers, h)
		app.Kinds = appendMissing(app.Kinds, h.Kinds...)
		app.Platforms = appendMissing(app.Platforms, h.Platforms...)

		info.Handlers = append(info.Handlers, h)
		info.Kinds = appendMissing(info.Kinds, h.Kinds...)
		info.Platforms = appendMissing(info.Platforms, h.Platforms...)
	}
	return info
}

// handlerURLs reads the url templates of every known platform. Templates
// with an unknown address type are skipped.
func handlerURLs(evt types.Event) ([]types.AppURL, []string) {
	var urls []types.AppURL
	var platforms []string
	for _, platform := range Platforms {
		for _, tag := range evt.TagsNamed(platform) {
			if len(tag) < 2 {
				continue
			}
			typ := ""
			if len(tag) > 2 {
				typ = tag[2]
			}
			if !slices.Contains(AddressTypes, typ) {
				continue
			}
			urls = append(urls, types.AppURL{URL: tag[1], Type: typ})
			platforms = appendMissing(platforms, platform)
		}
	}
	return urls, platforms
}

func appendMissing[T comparable](s []T, values ...T) []T {
	for _, v := range values {
		if !slices.Contains(s, v) {
			s = append(s, v)
		}
	}
	return s
}
