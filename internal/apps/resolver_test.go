package apps_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nostr-universe/internal/apps"
	"nostr-universe/internal/cache"
	"nostr-universe/internal/nips"
	"nostr-universe/internal/relay"
	"nostr-universe/internal/relay/relaytest"
	"nostr-universe/internal/types"
)

var (
	alice = strings.Repeat("a", 64)
	bob   = strings.Repeat("b", 64)
	carol = strings.Repeat("c", 64)
)

var textNote = types.Event{ID: strings.Repeat("1", 64), Kind: 1, PubKey: carol, CreatedAt: 100}

func newResolver(t *testing.T, events ...types.Event) (*apps.Resolver, *relaytest.Source) {
	src := relaytest.New(events...)
	cfg := relay.DefaultFetcherConfig()
	cfg.BatchWindow = time.Millisecond
	fetcher := relay.NewFetcher(src, cache.NewEventCache(), cfg, nil)
	backend := cache.NewMemoryCache(100, time.Minute)
	t.Cleanup(func() { backend.Close() })
	return apps.NewResolver(fetcher, backend, apps.DefaultConfig(), nil), src
}

func handlerQueries(src *relaytest.Source) int {
	n := 0
	for _, q := range src.Queries() {
		if len(q.Kinds) == 1 && q.Kinds[0] == nips.KindAppHandler {
			n++
		}
	}
	return n
}

func handlers() []types.Event {
	return []types.Event{
		{ID: "h1", Kind: 31990, PubKey: alice, CreatedAt: 1, Tags: [][]string{
			{"d", "reader"}, {"k", "1"}, {"web", "https://reader.app/<bech32>"},
		}},
		{ID: "h2", Kind: 31990, PubKey: bob, CreatedAt: 1, Content: `{"name":"Notes","website":"https://notes.app"}`, Tags: [][]string{
			{"d", "n"}, {"k", "1"}, {"k", "0"}, {"web", "https://notes.app/p/<bech32>", "npub"},
		}},
		{ID: "meta-alice", Kind: 0, PubKey: alice, CreatedAt: 1, Content: `{"name":"Reader","website":"https://reader.app"}`},
	}
}

func TestResolveAppsForAddress(t *testing.T) {
	r, src := newResolver(t, append(handlers(), textNote)...)
	note, err := nips.EncodeEventID(textNote.ID)
	require.NoError(t, err)

	info, ptr, err := r.ResolveAppsForAddress(context.Background(), note, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, ptr.Kind)
	assert.Equal(t, carol, ptr.PubKey)

	reader := info.App("reader")
	require.NotNil(t, reader)
	nevent, err := nips.EncodeNEvent(textNote.ID, nil, carol, 1)
	require.NoError(t, err)
	assert.Equal(t, "https://reader.app/"+nevent, reader.Handlers[0].EventURL)
	assert.True(t, reader.Handlers[0].InheritedProfile)
	assert.Equal(t, "Reader", reader.Handlers[0].Profile.Name)

	notes := info.App("Notes")
	require.NotNil(t, notes)
	assert.Empty(t, notes.Handlers[0].EventURL, "npub template cannot open a note")

	best := apps.BestApps(info)
	require.Len(t, best, 1)
	assert.Equal(t, "Reader", best[0].Name)

	// second lookup comes from the per-kind cache
	before := handlerQueries(src)
	again, _, err := r.ResolveAppsForAddress(context.Background(), note, nil)
	require.NoError(t, err)
	assert.Equal(t, before, handlerQueries(src))
	assert.Equal(t, reader.Handlers[0].EventURL, again.App("reader").Handlers[0].EventURL)
}

func TestResolveAppsForProfile(t *testing.T) {
	r, _ := newResolver(t, handlers()...)
	npub, err := nips.EncodePubkey(carol)
	require.NoError(t, err)

	info, _, err := r.ResolveAppsForAddress(context.Background(), npub, nil)
	require.NoError(t, err)
	require.Len(t, info.Apps, 1)
	assert.Equal(t, "https://notes.app/p/"+npub, info.Apps[0].Handlers[0].EventURL)
}

func TestResolveAppsKnownEventSkipsFetch(t *testing.T) {
	r, src := newResolver(t, handlers()...)
	evt := textNote
	_, ptr, err := r.ResolveAppsForAddress(context.Background(), textNote.ID, &evt)
	require.NoError(t, err)
	assert.Equal(t, 1, ptr.Kind)
	for _, q := range src.Queries() {
		assert.Empty(t, q.IDs, "kind came from the known event")
	}
}

func TestResolveAppsEmptyResultNotCached(t *testing.T) {
	r, src := newResolver(t, handlers()...)
	naddr, err := nips.EncodeNAddr(30023, alice, "x", nil)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		info, _, err := r.ResolveAppsForAddress(context.Background(), naddr, nil)
		require.NoError(t, err)
		assert.Empty(t, info.Apps)
	}
	assert.Equal(t, 2, handlerQueries(src))
}

func TestResolveAppsErrors(t *testing.T) {
	r, _ := newResolver(t)

	_, _, err := r.ResolveAppsForAddress(context.Background(), "npub1garbage", nil)
	assert.True(t, errors.Is(err, nips.ErrInvalidAddress))

	note, err := nips.EncodeEventID(strings.Repeat("9", 64))
	require.NoError(t, err)
	_, _, err = r.ResolveAppsForAddress(context.Background(), note, nil)
	assert.True(t, errors.Is(err, relay.ErrEventNotFound))
}

func TestFetchApps(t *testing.T) {
	events := []types.Event{
		{ID: "old", Kind: 31990, PubKey: alice, Content: `{"name":"Old","website":"https://old.app"}`, Tags: [][]string{
			{"d", "old"}, {"published_at", "100"}, {"k", "1"}, {"web", "https://old.app/<bech32>", "nevent"},
		}},
		{ID: "new", Kind: 31990, PubKey: bob, Content: `{"display_name":"New","name":"new","website":"https://new.app"}`, Tags: [][]string{
			{"d", "new"}, {"published_at", "200"}, {"k", "0"}, {"k", "1"},
			{"web", "https://new.app/e/<bech32>", "nevent"}, {"web", "https://new.app/p/<bech32>", "npub"},
		}},
		{ID: "inherit", Kind: 31990, PubKey: carol, Tags: [][]string{{"d", "i"}, {"published_at", "150"}}},
		{ID: "nosite", Kind: 31990, PubKey: alice, Content: `{"name":"NoSite"}`, Tags: [][]string{{"d", "ns"}}},
		{ID: "native", Kind: 31990, PubKey: alice, Content: `{"name":"Phone","website":"https://phone.app"}`, Tags: [][]string{
			{"d", "ph"}, {"ios", "phone://<bech32>"},
		}},
		{ID: "meta-carol", Kind: 0, PubKey: carol, Content: `{"website":"https://carol.app"}`},
	}
	r, src := newResolver(t, events...)

	got, err := r.FetchApps(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "New", got[0].Name)
	assert.Equal(t, []int{0, 1}, got[0].Kinds)
	assert.Equal(t, "npub", got[0].Handlers[0].Type)
	assert.Equal(t, "nevent", got[0].Handlers[1].Type)
	assert.Equal(t, "<Noname app>", got[1].Name)
	assert.Equal(t, "https://carol.app", got[1].URL)
	assert.Equal(t, "Old", got[2].Name)

	before := handlerQueries(src)
	_, err = r.FetchApps(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, handlerQueries(src), "catalogue is cached")
}
