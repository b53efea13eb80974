package stream

import (
	"context"

	"nostr-universe/internal/augment"
	"nostr-universe/internal/metrics"
	"nostr-universe/internal/nips"
	"nostr-universe/internal/nostr"
	"nostr-universe/internal/relay"
	"nostr-universe/internal/types"
)

// ProfileChannel streams kind 0 updates for a set of pubkeys.
type ProfileChannel struct {
	*Channel[types.ProfileEvent]
}

func NewProfileChannel(source relay.Source, relays []string, m *metrics.Collector) *ProfileChannel {
	return &ProfileChannel{NewChannel("profile", source, relays, func(_ context.Context, evt types.Event) (types.ProfileEvent, error) {
		return types.NewProfileEvent(evt, nostr.ParseProfile(evt)), nil
	}, m)}
}

// Subscribe replaces the watched pubkeys.
func (p *ProfileChannel) Subscribe(ctx context.Context, pubkeys []string, cb func(types.ProfileEvent)) error {
	return p.Restart(ctx, types.Filter{
		Authors: append([]string(nil), pubkeys...),
		Kinds:   []int{nips.KindMetadata},
	}, cb)
}

// ContactListChannel streams a user's contact list with contact profiles.
type ContactListChannel struct {
	*Channel[types.ContactList]
}

func NewContactListChannel(source relay.Source, relays []string, aug *augment.Augmenter, m *metrics.Collector) *ContactListChannel {
	return &ContactListChannel{NewChannel("contact list", source, relays, func(ctx context.Context, evt types.Event) (types.ContactList, error) {
		return aug.ContactList(ctx, evt), nil
	}, m)}
}

// Subscribe replaces the watched user.
func (c *ContactListChannel) Subscribe(ctx context.Context, pubkey string, cb func(types.ContactList)) error {
	return c.Restart(ctx, types.Filter{
		Authors: []string{pubkey},
		Kinds:   []int{nips.KindContactList},
	}, cb)
}
