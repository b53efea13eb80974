package augment

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"nostr-universe/internal/nips"
	"nostr-universe/internal/types"
)

// Communities reads name, description, image and moderators from kind 34550
// events and attaches author and moderator profiles.
func (a *Augmenter) Communities(ctx context.Context, events []types.Event) []types.Community {
	out := make([]types.Community, 0, len(events))
	var pubkeys []string
	for _, evt := range events {
		var mods []string
		for _, p := range evt.TagsNamed("p") {
			if len(p) >= 4 && p[3] == "moderator" {
				mods = append(mods, p[1])
			}
		}
		c := types.NewCommunity(evt.Clone(), evt.Identifier(), evt.TagValue("description"), evt.TagValue("image"), mods)
		out = append(out, c)
		pubkeys = append(pubkeys, evt.PubKey)
		pubkeys = append(pubkeys, mods...)
	}
	if len(out) == 0 {
		return out
	}

	profiles := a.fetcher.FetchProfiles(ctx, unique(pubkeys))
	for i := range out {
		c := &out[i]
		c.Author = profileOf(profiles, c.PubKey)
		for _, m := range c.Moderators {
			if p, ok := profiles[m]; ok {
				c.ModeratorMetas = append(c.ModeratorMetas, p)
			}
		}
	}
	return out
}

// ParseApprovals extracts the community each kind 4550 approval points at
// from its first "a" tag. Newest first.
func ParseApprovals(events []types.Event) []types.CommunityApproval {
	var out []types.CommunityApproval
	for _, evt := range events {
		parts := strings.Split(evt.TagValue("a"), ":")
		if len(parts) != 3 {
			continue
		}
		if kind, err := strconv.Atoi(parts[0]); err != nil || kind != nips.KindCommunity {
			continue
		}
		out = append(out, types.CommunityApproval{
			CreatedAt:           evt.CreatedAt,
			CommunityPubkey:     parts[1],
			CommunityIdentifier: parts[2],
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out
}

// ExtendCommunities ranks communities by their newest approved post.
// Communities without any matching approval are skipped.
func ExtendCommunities(communities []types.Community, approvals []types.CommunityApproval) []types.ActiveCommunity {
	out := make([]types.ActiveCommunity, 0, len(communities))
	for _, c := range communities {
		var latest int64
		posts := 0
		for _, appr := range approvals {
			if appr.CommunityPubkey != c.PubKey || appr.CommunityIdentifier != c.Name {
				continue
			}
			if posts == 0 || appr.CreatedAt > latest {
				latest = appr.CreatedAt
			}
			posts++
		}
		if posts == 0 {
			continue
		}
		out = append(out, types.NewActiveCommunity(c, latest, posts))
	}
	sortByOrderDesc(out, func(ac types.ActiveCommunity) int64 { return ac.Order })
	return out
}
