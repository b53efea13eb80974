package nips

import (
	"nostr-universe/internal/types"
)

// Pointer is a decoded address flattened into the fields the fetch layer and
// the app resolver work with. Fields that the address did not carry are zero.
type Pointer struct {
	Kind       int
	HasKind    bool
	PubKey     string
	EventID    string
	Identifier string
	Relays     []string
	Hex        bool
}

// ToPointer flattens an Address.
func ToPointer(addr Address) Pointer {
	switch a := addr.(type) {
	case ProfileAddress:
		return Pointer{Kind: KindMetadata, HasKind: true, PubKey: a.PubKey, Relays: a.Relays}
	case EventAddress:
		return Pointer{
			Kind:    a.Kind,
			HasKind: a.HasKind,
			PubKey:  a.Author,
			EventID: a.ID,
			Relays:  a.Relays,
			Hex:     a.Hex,
		}
	case EntityAddress:
		return Pointer{
			Kind:       a.Kind,
			HasKind:    true,
			PubKey:     a.PubKey,
			Identifier: a.Identifier,
			Relays:     a.Relays,
		}
	}
	return Pointer{}
}

// CacheKey is the key the pointer's target is stored under in the address cache.
func (p Pointer) CacheKey() string {
	if p.EventID != "" {
		return p.EventID
	}
	identifier := ""
	if IsParameterized(p.Kind) {
		identifier = p.Identifier
	}
	return AddressKey(p.Kind, p.PubKey, identifier)
}

// Filter builds the relay query that finds the pointer's target.
func (p Pointer) Filter() types.Filter {
	switch {
	case p.EventID != "":
		return types.Filter{IDs: []string{p.EventID}}
	case p.PubKey != "" && p.HasKind && IsParameterized(p.Kind):
		return types.Filter{
			Authors: []string{p.PubKey},
			Kinds:   []int{p.Kind},
			DTags:   []string{p.Identifier},
		}
	case p.PubKey != "" && p.HasKind:
		return types.Filter{Authors: []string{p.PubKey}, Kinds: []int{p.Kind}}
	}
	return types.Filter{}
}

// Resolve fills the pointer from the event it points at.
func (p Pointer) Resolve(evt types.Event) Pointer {
	p.Kind = evt.Kind
	p.HasKind = true
	p.EventID = evt.ID
	p.PubKey = evt.PubKey
	if IsParameterized(evt.Kind) {
		p.Identifier = evt.Identifier()
	}
	return p
}

// EncodeEvent returns the address that best opens evt: npub for metadata,
// naddr for replaceable kinds, nevent otherwise.
func EncodeEvent(evt types.Event, relays []string) (string, error) {
	switch {
	case evt.Kind == KindMetadata:
		return EncodePubkey(evt.PubKey)
	case IsReplaceable(evt.Kind):
		identifier := ""
		if IsParameterized(evt.Kind) {
			identifier = evt.Identifier()
		}
		return EncodeNAddr(evt.Kind, evt.PubKey, identifier, relays)
	}
	return EncodeNEvent(evt.ID, relays, evt.PubKey, evt.Kind)
}
