package augment

import (
	"context"
	"encoding/json"
	"log/slog"

	"nostr-universe/internal/nips"
	"nostr-universe/internal/nostr"
	"nostr-universe/internal/types"
)

// zapTargetKinds are the kinds a zap target is looked up as.
var zapTargetKinds = []int{
	nips.KindNote,
	nips.KindLongNote,
	nips.KindCommunity,
	nips.KindLiveEvent,
	nips.KindAppHandler,
}

// ParseZap reads the request, invoice and targets from a kind 9735 receipt.
// A bad description or invoice leaves the matching fields empty.
func ParseZap(evt types.Event) types.ZapFields {
	f := types.ZapFields{
		Bolt11:      evt.TagValue("bolt11"),
		TargetEvent: evt.TagValue("e"),
		TargetAddr:  evt.TagValue("a"),
		TargetPub:   evt.TagValue("p"),
	}

	if desc := evt.TagValue("description"); desc != "" {
		var req types.Event
		if err := json.Unmarshal([]byte(desc), &req); err != nil {
			slog.Debug("augment: bad zap description", "id", nostr.ShortID(evt.ID), "error", err)
		} else {
			f.Description = &req
		}
	}

	if f.Bolt11 != "" {
		amount, err := nips.DecodeInvoiceAmount(f.Bolt11)
		if err != nil {
			slog.Debug("augment: bad zap invoice", "id", nostr.ShortID(evt.ID), "error", err)
		} else {
			f.AmountMsat = amount
			f.HasAmount = true
		}
	}
	return f
}

// Zaps builds zaps from receipts. Receipts without a target event are
// dropped, as are those under minZap sats when minZap is set. Targets and
// every involved profile are fetched in one round each. Newest first.
func (a *Augmenter) Zaps(ctx context.Context, events []types.Event, minZap int64) []types.Zap {
	zaps := make([]types.Zap, 0, len(events))
	for _, evt := range events {
		f := ParseZap(evt)
		if f.TargetEvent == "" {
			continue
		}
		if minZap > 0 && (!f.HasAmount || f.AmountMsat/1000 < minZap) {
			continue
		}
		zaps = append(zaps, types.NewZap(evt.Clone(), f))
	}
	if len(zaps) == 0 {
		return zaps
	}

	targetIDs := make([]string, 0, len(zaps))
	for _, z := range zaps {
		targetIDs = append(targetIDs, z.TargetEventID)
	}
	targets, err := a.fetcher.FetchByIDs(ctx, unique(targetIDs), zapTargetKinds)
	if err != nil {
		slog.Debug("augment: zap targets partially fetched", "error", err)
	}
	byID := make(map[string]types.Event, len(targets))
	for _, t := range targets {
		byID[t.ID] = t
	}

	pubkeys := make([]string, 0, len(zaps)*4)
	for _, z := range zaps {
		pubkeys = append(pubkeys, z.ProviderPubkey, z.TargetPubkey, z.SenderPubkey)
		if t, ok := byID[z.TargetEventID]; ok {
			pubkeys = append(pubkeys, t.PubKey)
		}
	}
	profiles := a.fetcher.FetchProfiles(ctx, unique(pubkeys))

	for i := range zaps {
		z := &zaps[i]
		if t, ok := byID[z.TargetEventID]; ok {
			authored := types.NewAuthoredEvent(t, profileOf(profiles, t.PubKey))
			z.TargetEvent = &authored
		}
		z.TargetMeta = profileOf(profiles, z.TargetPubkey)
		z.SenderMeta = profileOf(profiles, z.SenderPubkey)
		z.ProviderMeta = profileOf(profiles, z.ProviderPubkey)
	}

	sortByOrderDesc(zaps, func(z types.Zap) int64 { return z.CreatedAt })
	return zaps
}
