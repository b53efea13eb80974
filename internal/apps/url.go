package apps

import (
	"strings"

	"nostr-universe/internal/nips"
	"nostr-universe/internal/types"
)

// Placeholder is replaced with the encoded address in handler url templates.
const Placeholder = "<bech32>"

// encoding is one candidate form of an address.
type encoding struct {
	typ    string
	encode func(p nips.Pointer) (string, error)
}

var (
	encNpub = encoding{"npub", func(p nips.Pointer) (string, error) {
		return nips.EncodePubkey(p.PubKey)
	}}
	encNprofile = encoding{"nprofile", func(p nips.Pointer) (string, error) {
		return nips.EncodeNProfile(p.PubKey, p.Relays)
	}}
	encNevent = encoding{"nevent", func(p nips.Pointer) (string, error) {
		return nips.EncodeNEvent(p.EventID, p.Relays, p.PubKey, p.Kind)
	}}
	encNote = encoding{"note", func(p nips.Pointer) (string, error) {
		return nips.EncodeEventID(p.EventID)
	}}
	encNaddr = encoding{"naddr", func(p nips.Pointer) (string, error) {
		return nips.EncodeNAddr(p.Kind, p.PubKey, p.Identifier, p.Relays)
	}}
)

// candidates lists the address forms to try for p, most specific first.
func candidates(p nips.Pointer) []encoding {
	var out []encoding
	switch {
	case p.Kind == nips.KindMetadata:
		if p.PubKey != "" {
			out = append(out, encNpub, encNprofile)
		}
		if p.EventID != "" {
			out = append(out, encNevent, encNote)
		}
	case nips.IsListKind(p.Kind):
		out = append(out, encNevent, encNote)
	case nips.IsParameterized(p.Kind):
		out = append(out, encNaddr)
		if p.EventID != "" {
			out = append(out, encNevent, encNote)
		}
	default:
		out = append(out, encNevent, encNote)
	}
	return out
}

// findURL returns the handler's template for typ, or its wildcard template.
func findURL(h types.AppHandler, typ string) (types.AppURL, bool) {
	for _, u := range h.URLs {
		if u.Type == typ {
			return u, true
		}
	}
	for _, u := range h.URLs {
		if u.Type == "" {
			return u, true
		}
	}
	return types.AppURL{}, false
}

// ResolveURL returns the handler url that opens p, or "" when the handler
// has no template for any form p can be encoded as.
func ResolveURL(h types.AppHandler, p nips.Pointer) string {
	if !p.HasKind {
		return ""
	}
	for _, enc := range candidates(p) {
		addr, err := enc.encode(p)
		if err != nil {
			continue
		}
		if u, ok := findURL(h, enc.typ); ok {
			return strings.ReplaceAll(u.URL, Placeholder, addr)
		}
	}
	return ""
}
