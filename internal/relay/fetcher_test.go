package relay_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nostr-universe/internal/cache"
	"nostr-universe/internal/nips"
	"nostr-universe/internal/relay"
	"nostr-universe/internal/relay/relaytest"
	"nostr-universe/internal/types"
)

const (
	alice = "7e7e9c42a91bfef19fa929e5fda1b72e0ebc1a4c1141673e2794234d86addf4e"
	bob   = "bbde6a0e8847e1cdb2ba5ec021cc949eb3cef125b8304a748fe11c0407990eec"
)

func hexID(c byte) string {
	b := make([]byte, 64)
	for i := range b {
		b[i] = c
	}
	return string(b)
}

func newFetcher(src relay.Source) (*relay.Fetcher, *cache.EventCache) {
	store := cache.NewEventCache()
	cfg := relay.DefaultFetcherConfig()
	cfg.MaxIDBatch = 2
	return relay.NewFetcher(src, store, cfg, nil), store
}

func ids(events []types.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func TestDedupe(t *testing.T) {
	tests := []struct {
		name   string
		events []types.Event
		want   []string
	}{
		{
			name: "same immutable event twice",
			events: []types.Event{
				{ID: "x", Kind: 1, CreatedAt: 5},
				{ID: "x", Kind: 1, CreatedAt: 5},
			},
			want: []string{"x"},
		},
		{
			name: "replaceable keeps newest",
			events: []types.Event{
				{ID: "old", Kind: 0, PubKey: alice, CreatedAt: 1},
				{ID: "new", Kind: 0, PubKey: alice, CreatedAt: 2},
				{ID: "note", Kind: 1, PubKey: alice, CreatedAt: 3},
			},
			want: []string{"new", "note"},
		},
		{
			name: "tie keeps first seen",
			events: []types.Event{
				{ID: "first", Kind: 3, PubKey: alice, CreatedAt: 7},
				{ID: "second", Kind: 3, PubKey: alice, CreatedAt: 7},
			},
			want: []string{"first"},
		},
		{
			name: "different identifiers are different addresses",
			events: []types.Event{
				{ID: "a", Kind: 30023, PubKey: alice, CreatedAt: 1, Tags: [][]string{{"d", "a"}}},
				{ID: "b", Kind: 30023, PubKey: alice, CreatedAt: 1, Tags: [][]string{{"d", "b"}}},
			},
			want: []string{"a", "b"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ids(relay.Dedupe(tt.events))); diff != "" {
				t.Errorf("Dedupe() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFetchByFilterWritesCache(t *testing.T) {
	src := relaytest.New(types.Event{ID: "n1", Kind: 1, PubKey: alice, CreatedAt: 10})
	f, store := newFetcher(src)

	events, err := f.FetchByFilter(context.Background(), types.Filter{Authors: []string{alice}})
	require.NoError(t, err)
	require.Len(t, events, 1)

	_, ok := store.Get("n1")
	assert.True(t, ok)
}

func TestFetchByIDsCacheFirst(t *testing.T) {
	src := relaytest.New(
		types.Event{ID: "n2", Kind: 1, CreatedAt: 20},
		types.Event{ID: "n3", Kind: 1, CreatedAt: 30},
		types.Event{ID: "n4", Kind: 1, CreatedAt: 40},
		types.Event{ID: "other", Kind: 1, CreatedAt: 50},
	)
	f, store := newFetcher(src)
	store.PutIfNewer(types.Event{ID: "n1", Kind: 1, CreatedAt: 10})
	store.PutIfNewer(types.Event{ID: "wrongkind", Kind: 7, CreatedAt: 11})

	events, err := f.FetchByIDs(context.Background(), []string{"n1", "n2", "n3", "n4", "wrongkind"}, []int{1})
	require.NoError(t, err)
	assert.Equal(t, []string{"n4", "n3", "n2", "n1"}, ids(events))

	// n1 and wrongkind come from cache, three misses in batches of two
	queries := src.Queries()
	require.Len(t, queries, 2)
	assert.ElementsMatch(t, [][]string{{"n2", "n3"}, {"n4"}}, [][]string{queries[0].IDs, queries[1].IDs})

	_, ok := store.Get("n4")
	assert.True(t, ok, "fetched events are cached")
}

func TestFetchByIDsToleratesNetworkFailure(t *testing.T) {
	src := relaytest.New()
	src.SetFailing(true)
	f, store := newFetcher(src)
	store.PutIfNewer(types.Event{ID: "n1", Kind: 1})

	events, err := f.FetchByIDs(context.Background(), []string{"n1", "n2"}, []int{1})
	assert.Error(t, err)
	assert.Equal(t, []string{"n1"}, ids(events))
}

func TestFetchByAddress(t *testing.T) {
	article := types.Event{ID: hexID('a'), Kind: 30023, PubKey: alice, CreatedAt: 5, Tags: [][]string{{"d", "slug"}}}
	newer := types.Event{ID: hexID('b'), Kind: 30023, PubKey: alice, CreatedAt: 9, Tags: [][]string{{"d", "slug"}}}
	src := relaytest.New(article, newer)
	f, _ := newFetcher(src)

	ptr := nips.Pointer{Kind: 30023, HasKind: true, PubKey: alice, Identifier: "slug"}
	got, err := f.FetchByAddress(context.Background(), ptr)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)

	// second lookup is served by the address cache
	before := len(src.Queries())
	_, err = f.FetchByAddress(context.Background(), ptr)
	require.NoError(t, err)
	assert.Equal(t, before, len(src.Queries()))
}

func TestFetchByAddressHexFallsBackToProfile(t *testing.T) {
	profile := types.Event{ID: hexID('c'), Kind: 0, PubKey: bob, CreatedAt: 3, Content: `{"name":"bob"}`}
	src := relaytest.New(profile)
	f, _ := newFetcher(src)

	addr, err := nips.Decode(bob)
	require.NoError(t, err)
	got, err := f.FetchByAddress(context.Background(), nips.ToPointer(addr))
	require.NoError(t, err)
	assert.Equal(t, profile.ID, got.ID)
}

func TestFetchByAddressNotFound(t *testing.T) {
	f, _ := newFetcher(relaytest.New())
	_, err := f.FetchByAddress(context.Background(), nips.Pointer{EventID: hexID('d')})
	assert.True(t, errors.Is(err, relay.ErrEventNotFound))

	_, err = f.FetchByAddress(context.Background(), nips.Pointer{})
	assert.True(t, errors.Is(err, relay.ErrEventNotFound))
}

func TestFetchProfiles(t *testing.T) {
	src := relaytest.New(
		types.Event{ID: "pa", Kind: 0, PubKey: alice, CreatedAt: 1, Content: `{"name":"alice"}`},
		types.Event{ID: "pb", Kind: 0, PubKey: bob, CreatedAt: 1, Content: `{"display_name":"Bob"}`},
	)
	f, _ := newFetcher(src)

	got := f.FetchProfiles(context.Background(), []string{alice, bob, alice, "missing"})
	require.Len(t, got, 2)
	assert.Equal(t, "alice", got[alice].Profile.Name)
	bobProfile := got[bob].Profile
	assert.Equal(t, "Bob", bobProfile.BestName())

	// served from cache now
	before := len(src.Queries())
	again := f.FetchProfiles(context.Background(), []string{alice})
	assert.Equal(t, "alice", again[alice].Profile.Name)
	assert.Equal(t, before, len(src.Queries()))
}

func TestFetchPubkeyEvents(t *testing.T) {
	src := relaytest.New(
		types.Event{ID: "z1", Kind: 9735, CreatedAt: 1, Tags: [][]string{{"p", alice}}},
		types.Event{ID: "z2", Kind: 9735, CreatedAt: 2, Tags: [][]string{{"p", alice}}},
		types.Event{ID: "z3", Kind: 9735, CreatedAt: 3, Tags: [][]string{{"p", bob}}},
	)
	f, _ := newFetcher(src)

	events, err := f.FetchPubkeyEvents(context.Background(), relay.PubkeyQuery{
		Kind: 9735, Pubkeys: []string{alice}, Tagged: true, Limit: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"z2"}, ids(events))

	q := src.Queries()[0]
	assert.Equal(t, []string{alice}, q.PTags)
	assert.Empty(t, q.Authors)
}

func TestSearch(t *testing.T) {
	src := relaytest.New(
		types.Event{ID: "s1", Kind: 1, CreatedAt: 1},
		types.Event{ID: "s2", Kind: 1, CreatedAt: 2},
	)
	f, _ := newFetcher(src)

	events, err := f.Search(context.Background(), "nostr", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"s2", "s1"}, ids(events))
	q := src.Queries()[0]
	assert.Equal(t, "nostr", q.Search)
	assert.Equal(t, 30, q.Limit)
}

func TestCrop(t *testing.T) {
	assert.Equal(t, []int{1, 2}, relay.Crop([]int{1, 2, 3}, 2))
	assert.Equal(t, []int{1, 2, 3}, relay.Crop([]int{1, 2, 3}, 0))
}
