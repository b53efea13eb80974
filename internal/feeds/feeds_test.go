package feeds_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nostr-universe/internal/augment"
	"nostr-universe/internal/cache"
	"nostr-universe/internal/feeds"
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

const now = 1_700_000_000

func newFeeds(src *relaytest.Source) *feeds.Feeds {
	cfg := relay.DefaultFetcherConfig()
	cfg.BatchWindow = time.Millisecond
	fetcher := relay.NewFetcher(src, cache.NewEventCache(), cfg, nil)
	aug := augment.New(fetcher)
	aug.Now = func() time.Time { return time.Unix(now, 0) }
	return feeds.New(fetcher, aug)
}

func profile(pubkey, name string) types.Event {
	return types.Event{ID: "meta-" + name, Kind: 0, PubKey: pubkey, CreatedAt: 1, Content: `{"name":"` + name + `"}`}
}

func TestFollowedLongNotes(t *testing.T) {
	src := relaytest.New(
		profile(alice, "alice"),
		types.Event{ID: "post1", Kind: 30023, PubKey: alice, CreatedAt: 10, Tags: [][]string{{"d", "one"}, {"title", "One"}}},
		types.Event{ID: "post2", Kind: 30023, PubKey: bob, CreatedAt: 20, Tags: [][]string{{"d", "two"}}},
	)
	f := newFeeds(src)

	notes, err := f.FollowedLongNotes(context.Background(), []string{alice})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "One", notes[0].Title)
	require.NotNil(t, notes[0].Author)
	assert.Equal(t, "alice", notes[0].Author.Profile.Name)
}

func TestFollowedZapsUsesTaggedQuery(t *testing.T) {
	src := relaytest.New(
		types.Event{ID: "note", Kind: 1, PubKey: alice, CreatedAt: 1},
		types.Event{ID: "zap1", Kind: 9735, PubKey: carol, CreatedAt: 5, Tags: [][]string{{"p", alice}, {"e", "note"}}},
		types.Event{ID: "zap2", Kind: 9735, PubKey: carol, CreatedAt: 6, Tags: [][]string{{"p", alice}}},
	)
	f := newFeeds(src)

	zaps, err := f.FollowedZaps(context.Background(), []string{alice}, 0)
	require.NoError(t, err)
	require.Len(t, zaps, 1)
	assert.Equal(t, "zap1", zaps[0].ID)
	require.NotNil(t, zaps[0].TargetEvent)
	assert.Equal(t, "note", zaps[0].TargetEvent.ID)

	q := src.Queries()[0]
	assert.Equal(t, []string{alice}, q.PTags)
	assert.Equal(t, 200, q.Limit)
}

func TestFollowedLiveEventsSkipsEnded(t *testing.T) {
	live := types.Event{ID: "live", Kind: 30311, PubKey: bob, CreatedAt: now - 60, Tags: [][]string{
		{"d", "s1"}, {"status", "live"}, {"starts", "100"}, {"p", alice, "", "Host"},
	}}
	ended := types.Event{ID: "ended", Kind: 30311, PubKey: bob, CreatedAt: now - 60, Tags: [][]string{
		{"d", "s2"}, {"status", "ended"}, {"starts", "200"}, {"p", alice, "", "host"},
	}}
	f := newFeeds(relaytest.New(live, ended))

	got, err := f.FollowedLiveEvents(context.Background(), []string{alice}, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "live", got[0].ID)
	assert.Equal(t, alice, got[0].Host)
}

func TestFollowedCommunities(t *testing.T) {
	src := relaytest.New(
		types.Event{ID: "ap1", Kind: 4550, PubKey: alice, CreatedAt: 30, Tags: [][]string{{"a", "34550:" + bob + ":books"}}},
		types.Event{ID: "ap2", Kind: 4550, PubKey: alice, CreatedAt: 50, Tags: [][]string{{"a", "34550:" + bob + ":books"}}},
		types.Event{ID: "ap3", Kind: 4550, PubKey: carol, CreatedAt: 70, Tags: [][]string{{"a", "34550:" + carol + ":music"}}},
		types.Event{ID: "books", Kind: 34550, PubKey: bob, CreatedAt: 1, Tags: [][]string{{"d", "books"}, {"description", "reading"}}},
		types.Event{ID: "music", Kind: 34550, PubKey: carol, CreatedAt: 1, Tags: [][]string{{"d", "music"}}},
	)
	f := newFeeds(src)

	got, err := f.FollowedCommunities(context.Background(), []string{alice})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "books", got[0].Name)
	assert.Equal(t, "reading", got[0].Description)
	assert.Equal(t, int64(50), got[0].LastPostTime)
	assert.Equal(t, 2, got[0].Posts)

	empty, err := f.FollowedCommunities(context.Background(), []string{bob})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSearchProfiles(t *testing.T) {
	src := relaytest.New(profile(alice, "alice"), profile(bob, "bob"))
	f := newFeeds(src)

	got, err := f.SearchProfiles(context.Background(), "ali", 5)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	q := src.Queries()[0]
	assert.Equal(t, "ali", q.Search)
	assert.Equal(t, []int{0}, q.Kinds)
	assert.Equal(t, 5, q.Limit)
}

func TestSearchLiveEventsIncludesEnded(t *testing.T) {
	ended := types.Event{ID: "ended", Kind: 30311, PubKey: bob, CreatedAt: 1, Tags: [][]string{
		{"d", "s"}, {"status", "ended"}, {"p", alice, "", "host"},
	}}
	f := newFeeds(relaytest.New(ended))

	got, err := f.SearchLiveEvents(context.Background(), "music", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ended", got[0].Status)
}

func TestSearchFailure(t *testing.T) {
	src := relaytest.New()
	src.SetFailing(true)
	f := newFeeds(src)

	_, err := f.SearchNotes(context.Background(), "x", 0)
	assert.ErrorIs(t, err, relay.ErrNoRelays)
}

func TestEventByBech32(t *testing.T) {
	id := strings.Repeat("e", 64)
	src := relaytest.New(types.Event{ID: id, Kind: 1, PubKey: alice, CreatedAt: 3})
	f := newFeeds(src)

	note, err := nips.EncodeAddress(nips.EventAddress{ID: id})
	require.NoError(t, err)
	evt, err := f.EventByBech32(context.Background(), note)
	require.NoError(t, err)
	assert.Equal(t, id, evt.ID)

	_, err = f.EventByBech32(context.Background(), "npub1garbage")
	assert.ErrorIs(t, err, nips.ErrInvalidAddress)

	_, err = f.EventByBech32(context.Background(), "nostr:"+strings.Repeat("f", 64))
	assert.ErrorIs(t, err, relay.ErrEventNotFound)
}
