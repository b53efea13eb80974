package apps

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nostr-universe/internal/nips"
	"nostr-universe/internal/types"
)

var (
	pubkey  = strings.Repeat("a", 64)
	eventID = strings.Repeat("e", 64)
)

func mustEncode(t *testing.T) func(string, error) string {
	return func(s string, err error) string {
		t.Helper()
		require.NoError(t, err)
		return s
	}
}

func handlerWith(urls ...types.AppURL) types.AppHandler {
	return types.AppHandler{URLs: urls}
}

func TestResolveURL(t *testing.T) {
	must := mustEncode(t)
	npub := must(nips.EncodePubkey(pubkey))
	note := must(nips.EncodeEventID(eventID))
	nevent := must(nips.EncodeNEvent(eventID, nil, pubkey, 1))
	naddr := must(nips.EncodeNAddr(30023, pubkey, "slug", nil))
	neventLong := must(nips.EncodeNEvent(eventID, nil, pubkey, 30023))

	wildcard := types.AppURL{URL: "https://any.app/<bech32>"}
	profileOnly := types.AppURL{URL: "https://p.app/<bech32>", Type: "npub"}
	noteOnly := types.AppURL{URL: "https://n.app/<bech32>", Type: "note"}
	naddrOnly := types.AppURL{URL: "https://a.app/<bech32>", Type: "naddr"}

	profile := nips.Pointer{Kind: 0, HasKind: true, PubKey: pubkey}
	textNote := nips.Pointer{Kind: 1, HasKind: true, PubKey: pubkey, EventID: eventID}
	article := nips.Pointer{Kind: 30023, HasKind: true, PubKey: pubkey, Identifier: "slug"}
	articleWithID := article
	articleWithID.EventID = eventID
	contacts := nips.Pointer{Kind: 3, HasKind: true, PubKey: pubkey, EventID: eventID}

	tests := []struct {
		name    string
		handler types.AppHandler
		ptr     nips.Pointer
		want    string
	}{
		{"profile prefers npub template", handlerWith(wildcard, profileOnly), profile, "https://p.app/" + npub},
		{"profile falls back to wildcard", handlerWith(wildcard), profile, "https://any.app/" + npub},
		{"note with wildcard gets nevent", handlerWith(wildcard), textNote, "https://any.app/" + nevent},
		{"note specific template", handlerWith(noteOnly), textNote, "https://n.app/" + note},
		{"npub template cannot open a note", handlerWith(profileOnly), textNote, ""},
		{"article prefers naddr", handlerWith(wildcard), article, "https://any.app/" + naddr},
		{"article falls back to event forms", handlerWith(noteOnly), articleWithID, "https://n.app/" + note},
		{"article without id has no event form", handlerWith(noteOnly), article, ""},
		{"article nevent carries kind", handlerWith(types.AppURL{URL: "https://e.app/<bech32>", Type: "nevent"}), articleWithID, "https://e.app/" + neventLong},
		{"lists never use naddr", handlerWith(naddrOnly), contacts, ""},
		{"unknown kind", handlerWith(wildcard), nips.Pointer{EventID: eventID}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveURL(tt.handler, tt.ptr))
		})
	}
}

func TestCatalogueURL(t *testing.T) {
	evt := types.Event{Tags: [][]string{
		{"web", "https://x/plain"},
		{"web", "https://x/e/<bech32>", "nevent"},
		{"web", "https://x/p/<bech32>", "nprofile"},
		{"web", "https://x/a/<bech32>", "naddr"},
	}}

	u, ok := catalogueURL(evt, 0)
	require.True(t, ok)
	assert.Equal(t, "nprofile", u.Type)

	u, _ = catalogueURL(evt, 30023)
	assert.Equal(t, "naddr", u.Type)

	u, _ = catalogueURL(evt, 1)
	assert.Equal(t, "nevent", u.Type)

	_, ok = catalogueURL(types.Event{Tags: [][]string{{"web", "https://x/plain"}}}, 1)
	assert.False(t, ok)
}

func TestIsWeb(t *testing.T) {
	assert.True(t, isWeb(types.Event{}))
	assert.True(t, isWeb(types.Event{Tags: [][]string{{"k", "1"}, {"web", "u"}, {"ios", "u"}}}))
	assert.False(t, isWeb(types.Event{Tags: [][]string{{"android", "u"}, {"web", "u"}}}))
}
