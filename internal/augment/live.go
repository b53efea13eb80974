package augment

import (
	"context"
	"slices"
	"strings"

	"nostr-universe/internal/types"
)

const (
	StatusLive  = "live"
	StatusEnded = "ended"

	// liveStaleAfter is how long a "live" event may go without an update
	// before it is treated as ended.
	liveStaleAfter = 3600
)

// ParseLive reads a kind 30311 event's tags. Members are participants with a
// role, limited to contacts when contacts is non-empty.
func ParseLive(evt types.Event, contacts []string, now int64) types.LiveFields {
	f := types.LiveFields{
		Title:               evt.TagValue("title"),
		Summary:             evt.TagValue("summary"),
		Starts:              parseNumber(evt.TagValue("starts")),
		CurrentParticipants: int(parseNumber(evt.TagValue("current_participants"))),
		Status:              evt.TagValue("status"),
	}
	if f.Status == StatusLive && now-evt.CreatedAt > liveStaleAfter {
		f.Status = StatusEnded
	}

	for _, p := range evt.TagsNamed("p") {
		if len(p) < 4 {
			continue
		}
		if f.Host == "" && strings.EqualFold(p[3], "host") {
			f.Host = p[1]
		}
		if len(contacts) == 0 || slices.Contains(contacts, p[1]) {
			f.Members = append(f.Members, p[1])
		}
	}
	return f
}

// LiveEvents builds live events ordered by start time, with live streams
// ahead of everything else. Events without a host are dropped, and so are
// ended ones unless includeEnded. Profiles are fetched after cropping.
func (a *Augmenter) LiveEvents(ctx context.Context, events []types.Event, contacts []string, limit int, includeEnded bool) []types.LiveEvent {
	now := a.Now().Unix()

	lives := make([]types.LiveEvent, 0, len(events))
	for _, evt := range events {
		f := ParseLive(evt, contacts, now)
		if f.Host == "" {
			continue
		}
		if f.Status == StatusEnded && !includeEnded {
			continue
		}
		le := types.NewLiveEvent(evt.Clone(), f)
		le.Order = f.Starts
		if f.Status != StatusLive {
			le.Order = -f.Starts
		}
		lives = append(lives, le)
	}

	sortByOrderDesc(lives, func(le types.LiveEvent) int64 { return le.Order })
	if limit > 0 && len(lives) > limit {
		lives = lives[:limit]
	}
	if len(lives) == 0 {
		return lives
	}

	var pubkeys []string
	for _, le := range lives {
		pubkeys = append(pubkeys, le.PubKey, le.Host)
		pubkeys = append(pubkeys, le.Members...)
	}
	profiles := a.fetcher.FetchProfiles(ctx, unique(pubkeys))

	for i := range lives {
		le := &lives[i]
		le.Author = profileOf(profiles, le.PubKey)
		le.HostMeta = profileOf(profiles, le.Host)
		for _, m := range le.Members {
			if p, ok := profiles[m]; ok {
				le.MemberMetas = append(le.MemberMetas, p)
			}
		}
	}
	return lives
}
