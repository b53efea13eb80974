// Package feeds builds the followed and search feeds on top of the fetcher
// and the augmentation pipeline.
package feeds

import (
	"context"
	"fmt"
	"log/slog"

	"nostr-universe/internal/augment"
	"nostr-universe/internal/nips"
	"nostr-universe/internal/nostr"
	"nostr-universe/internal/relay"
	"nostr-universe/internal/types"
)

const (
	followedZapLimit       = 200
	followedCommunityLimit = 100
)

type Feeds struct {
	fetcher *relay.Fetcher
	aug     *augment.Augmenter
}

func New(fetcher *relay.Fetcher, aug *augment.Augmenter) *Feeds {
	return &Feeds{fetcher: fetcher, aug: aug}
}

// FollowedLongNotes returns articles written by contacts.
func (f *Feeds) FollowedLongNotes(ctx context.Context, contacts []string) ([]types.LongNote, error) {
	events, err := f.fetcher.FetchPubkeyEvents(ctx, relay.PubkeyQuery{Kind: nips.KindLongNote, Pubkeys: contacts})
	if err != nil {
		return nil, fmt.Errorf("followed long notes: %w", err)
	}
	return f.aug.LongNotes(f.aug.Authors(ctx, events)), nil
}

// FollowedHighlights returns highlights made by contacts.
func (f *Feeds) FollowedHighlights(ctx context.Context, contacts []string) ([]types.Highlight, error) {
	events, err := f.fetcher.FetchPubkeyEvents(ctx, relay.PubkeyQuery{Kind: nips.KindHighlight, Pubkeys: contacts})
	if err != nil {
		return nil, fmt.Errorf("followed highlights: %w", err)
	}
	return f.aug.Highlights(f.aug.Authors(ctx, events)), nil
}

// FollowedZaps returns zaps received by contacts of at least minZap sats.
func (f *Feeds) FollowedZaps(ctx context.Context, contacts []string, minZap int64) ([]types.Zap, error) {
	events, err := f.fetcher.FetchPubkeyEvents(ctx, relay.PubkeyQuery{
		Kind:    nips.KindZap,
		Pubkeys: contacts,
		Tagged:  true,
		Limit:   followedZapLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("followed zaps: %w", err)
	}
	return f.aug.Zaps(ctx, events, minZap), nil
}

// FollowedLiveEvents returns live streams contacts take part in. Ended
// streams are left out.
func (f *Feeds) FollowedLiveEvents(ctx context.Context, contacts []string, limit int) ([]types.LiveEvent, error) {
	events, err := f.fetcher.FetchPubkeyEvents(ctx, relay.PubkeyQuery{
		Kind:    nips.KindLiveEvent,
		Pubkeys: contacts,
		Tagged:  true,
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("followed live events: %w", err)
	}
	return f.aug.LiveEvents(ctx, events, contacts, limit, false), nil
}

// FollowedCommunities finds communities where contacts approved posts and
// ranks them by the latest approval.
func (f *Feeds) FollowedCommunities(ctx context.Context, contacts []string) ([]types.ActiveCommunity, error) {
	events, err := f.fetcher.FetchPubkeyEvents(ctx, relay.PubkeyQuery{
		Kind:    nips.KindCommunityApproval,
		Pubkeys: contacts,
		Limit:   followedCommunityLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("followed communities: %w", err)
	}
	approvals := augment.ParseApprovals(events)
	if len(approvals) == 0 {
		return nil, nil
	}

	var pubkeys, identifiers []string
	seenPK := make(map[string]bool)
	seenID := make(map[string]bool)
	for _, a := range approvals {
		if !seenPK[a.CommunityPubkey] {
			seenPK[a.CommunityPubkey] = true
			pubkeys = append(pubkeys, a.CommunityPubkey)
		}
		if !seenID[a.CommunityIdentifier] {
			seenID[a.CommunityIdentifier] = true
			identifiers = append(identifiers, a.CommunityIdentifier)
		}
	}

	defs, err := f.fetcher.FetchPubkeyEvents(ctx, relay.PubkeyQuery{
		Kind:        nips.KindCommunity,
		Pubkeys:     pubkeys,
		Identifiers: identifiers,
		Limit:       followedCommunityLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("followed communities: %w", err)
	}
	slog.Debug("feeds: followed communities", "approvals", len(approvals), "communities", len(defs))
	return augment.ExtendCommunities(f.aug.Communities(ctx, defs), approvals), nil
}

// SearchNotes runs a full text search over short notes.
func (f *Feeds) SearchNotes(ctx context.Context, query string, limit int) ([]types.AuthoredEvent, error) {
	events, err := f.fetcher.Search(ctx, query, nips.KindNote, limit)
	if err != nil {
		return nil, fmt.Errorf("search notes: %w", err)
	}
	return f.aug.Authors(ctx, events), nil
}

func (f *Feeds) SearchLongNotes(ctx context.Context, query string, limit int) ([]types.LongNote, error) {
	events, err := f.fetcher.Search(ctx, query, nips.KindLongNote, limit)
	if err != nil {
		return nil, fmt.Errorf("search long notes: %w", err)
	}
	return f.aug.LongNotes(f.aug.Authors(ctx, events)), nil
}

// SearchLiveEvents includes ended streams.
func (f *Feeds) SearchLiveEvents(ctx context.Context, query string, limit int) ([]types.LiveEvent, error) {
	events, err := f.fetcher.Search(ctx, query, nips.KindLiveEvent, limit)
	if err != nil {
		return nil, fmt.Errorf("search live events: %w", err)
	}
	return f.aug.LiveEvents(ctx, events, nil, limit, true), nil
}

func (f *Feeds) SearchCommunities(ctx context.Context, query string, limit int) ([]types.Community, error) {
	events, err := f.fetcher.Search(ctx, query, nips.KindCommunity, limit)
	if err != nil {
		return nil, fmt.Errorf("search communities: %w", err)
	}
	return f.aug.Communities(ctx, events), nil
}

// SearchProfiles returns matching profiles, newest first.
func (f *Feeds) SearchProfiles(ctx context.Context, query string, limit int) ([]types.ProfileEvent, error) {
	events, err := f.fetcher.Search(ctx, query, nips.KindMetadata, limit)
	if err != nil {
		return nil, fmt.Errorf("search profiles: %w", err)
	}
	out := make([]types.ProfileEvent, 0, len(events))
	for _, evt := range events {
		out = append(out, types.NewProfileEvent(evt, nostr.ParseProfile(evt)))
	}
	return out, nil
}

// EventByBech32 decodes a NIP-19 string or hex id and fetches the event it
// points to.
func (f *Feeds) EventByBech32(ctx context.Context, s string) (types.Event, error) {
	addr, err := nips.Decode(s)
	if err != nil {
		return types.Event{}, err
	}
	return f.fetcher.FetchByAddress(ctx, nips.ToPointer(addr))
}
