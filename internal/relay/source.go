// Package relay talks to Nostr relays: a websocket Pool that fans queries out
// over many relays, and a cache-aware Fetcher built on top of any Source.
package relay

import (
	"context"
	"errors"
	"slices"

	"nostr-universe/internal/types"
)

var (
	// ErrEventNotFound is returned when a required event is absent after a network fetch.
	ErrEventNotFound = errors.New("event not found")
	// ErrNoRelays is returned when no relay could be queried at all.
	ErrNoRelays = errors.New("no relay reachable")
)

type MessageType int

const (
	MessageEvent MessageType = iota
	MessageEOSE
)

// Message is one item of a long-lived stream: an event, or the single
// end-of-stored-events marker.
type Message struct {
	Type  MessageType
	Event types.Event
	Relay string
}

// Source is the network collaborator of the fetch layer.
type Source interface {
	// Fetch queries relays until each has sent EOSE or ctx expires. Failed
	// relays are skipped; the error is non-nil only if none could be queried.
	Fetch(ctx context.Context, relays []string, filter types.Filter) ([]types.Event, error)

	// Stream keeps a subscription open until ctx is done, then closes the
	// channel. Exactly one MessageEOSE is sent once the backlog is in.
	Stream(ctx context.Context, relays []string, filter types.Filter) (<-chan Message, error)

	// Publish sends evt and waits for the relay's OK.
	Publish(ctx context.Context, relay string, evt types.Event) error
}

// mergeByID appends events not yet seen, merging RelaysSeen of duplicates.
func mergeByID(dst []types.Event, index map[string]int, events ...types.Event) []types.Event {
	for _, evt := range events {
		if i, ok := index[evt.ID]; ok {
			dst[i].RelaysSeen = appendUnique(dst[i].RelaysSeen, evt.RelaysSeen...)
			continue
		}
		index[evt.ID] = len(dst)
		dst = append(dst, evt)
	}
	return dst
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		if !slices.Contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}
