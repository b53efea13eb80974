package cache

import (
	"github.com/puzpuzpuz/xsync/v2"

	"nostr-universe/internal/nips"
	"nostr-universe/internal/nostr"
	"nostr-universe/internal/types"
)

// Store is the event cache contract used by the fetch layer.
type Store interface {
	Get(id string) (types.Event, bool)
	GetByAddress(key string) (types.Event, bool)
	GetProfile(pubkey string) (types.ProfileEvent, bool)
	PutIfNewer(evt types.Event) bool
	Clear()
	Len() int
}

// EventCache keeps events by id, by replaceable address and parsed
// profiles by pubkey. Address and profile slots only move forward in time;
// an equal timestamp overwrites. All reads return deep copies.
type EventCache struct {
	byID     *xsync.MapOf[string, types.Event]
	byAddr   *xsync.MapOf[string, types.Event]
	profiles *xsync.MapOf[string, types.ProfileEvent]
}

var _ Store = (*EventCache)(nil)

func NewEventCache() *EventCache {
	return &EventCache{
		byID:     xsync.NewMapOf[types.Event](),
		byAddr:   xsync.NewMapOf[types.Event](),
		profiles: xsync.NewMapOf[types.ProfileEvent](),
	}
}

func (c *EventCache) Get(id string) (types.Event, bool) {
	evt, ok := c.byID.Load(id)
	if !ok {
		return types.Event{}, false
	}
	return evt.Clone(), true
}

// GetByAddress looks up by nips.ReplaceableKey / nips.AddressKey.
func (c *EventCache) GetByAddress(key string) (types.Event, bool) {
	evt, ok := c.byAddr.Load(key)
	if !ok {
		return types.Event{}, false
	}
	return evt.Clone(), true
}

func (c *EventCache) GetProfile(pubkey string) (types.ProfileEvent, bool) {
	p, ok := c.profiles.Load(pubkey)
	if !ok {
		return types.ProfileEvent{}, false
	}
	out := p
	out.Event = p.Event.Clone()
	return out, true
}

// PutIfNewer stores evt by id unconditionally and claims its address slot
// unless a strictly newer event already holds it. Returns whether the
// address slot now holds evt.
func (c *EventCache) PutIfNewer(evt types.Event) bool {
	if evt.ID == "" {
		return false
	}
	stored := evt.Clone()
	c.byID.Store(stored.ID, stored)

	won := false
	c.byAddr.Compute(nips.ReplaceableKey(stored), func(old types.Event, loaded bool) (types.Event, bool) {
		if loaded && old.CreatedAt > stored.CreatedAt {
			return old, false
		}
		won = true
		return stored, false
	})

	if won && stored.Kind == nips.KindMetadata {
		profile := types.NewProfileEvent(stored, nostr.ParseProfile(stored))
		c.profiles.Compute(stored.PubKey, func(old types.ProfileEvent, loaded bool) (types.ProfileEvent, bool) {
			if loaded && old.CreatedAt > stored.CreatedAt {
				return old, false
			}
			return profile, false
		})
	}
	return won
}

// PutAll stores every event and returns how many claimed their address slot.
func (c *EventCache) PutAll(events []types.Event) int {
	n := 0
	for _, evt := range events {
		if c.PutIfNewer(evt) {
			n++
		}
	}
	return n
}

func (c *EventCache) Clear() {
	c.byID.Range(func(k string, _ types.Event) bool {
		c.byID.Delete(k)
		return true
	})
	c.byAddr.Range(func(k string, _ types.Event) bool {
		c.byAddr.Delete(k)
		return true
	})
	c.profiles.Range(func(k string, _ types.ProfileEvent) bool {
		c.profiles.Delete(k)
		return true
	})
}

// Len returns the number of events held by id.
func (c *EventCache) Len() int {
	return c.byID.Size()
}
