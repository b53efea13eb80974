package augment

import (
	"context"

	"nostr-universe/internal/types"
)

// ContactPubkeys returns the unique "p" tag pubkeys of a contact list in order.
func ContactPubkeys(evt types.Event) []string {
	var pubkeys []string
	for _, p := range evt.TagsNamed("p") {
		if len(p) < 2 {
			continue
		}
		pubkeys = append(pubkeys, p[1])
	}
	return unique(pubkeys)
}

// ContactList attaches the profiles of a kind 3 event's contacts. Each
// profile's order is its position in the list; later entries come first.
func (a *Augmenter) ContactList(ctx context.Context, evt types.Event) types.ContactList {
	pubkeys := ContactPubkeys(evt)
	profiles := a.fetcher.FetchProfiles(ctx, pubkeys)

	contacts := make([]types.ProfileEvent, 0, len(profiles))
	for i, pk := range pubkeys {
		p, ok := profiles[pk]
		if !ok {
			continue
		}
		p.Order = int64(i)
		contacts = append(contacts, p)
	}
	sortByOrderDesc(contacts, func(p types.ProfileEvent) int64 { return p.Order })
	return types.NewContactList(evt.Clone(), pubkeys, contacts)
}
