package client

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nostr-universe/internal/cache"
	"nostr-universe/internal/config"
	"nostr-universe/internal/nips"
	"nostr-universe/internal/relay/relaytest"
	"nostr-universe/internal/types"
	"nostr-universe/internal/wallet"
)

var (
	alice = strings.Repeat("a", 64)
	carol = strings.Repeat("c", 64)
)

func testClient(t *testing.T, cfg *config.Config, events ...types.Event) *Client {
	t.Helper()
	backend := cache.NewMemoryCache(100, time.Minute)
	c, err := newClient(cfg, relaytest.New(events...), backend, nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestOpenResolvesEmbeddedAddress(t *testing.T) {
	note := types.Event{ID: strings.Repeat("1", 64), Kind: 1, PubKey: carol, CreatedAt: 5}
	handler := types.Event{ID: "h1", Kind: 31990, PubKey: alice, CreatedAt: 1, Tags: [][]string{
		{"d", "reader"}, {"k", "1"}, {"web", "https://reader.app/<bech32>"},
	}}
	c := testClient(t, config.Default(), note, handler)

	bech, err := nips.EncodeEventID(note.ID)
	require.NoError(t, err)
	info, ptr, err := c.Open(context.Background(), "look at nostr:"+bech+" please")
	require.NoError(t, err)
	assert.Equal(t, 1, ptr.Kind)
	require.NotNil(t, info.App("reader"))
	assert.True(t, strings.HasPrefix(info.App("reader").Handlers[0].EventURL, "https://reader.app/nevent1"))

	_, _, err = c.Open(context.Background(), "nothing here")
	assert.ErrorIs(t, err, nips.ErrInvalidAddress)
}

func TestPayInvoiceWithoutWallet(t *testing.T) {
	c := testClient(t, config.Default())
	assert.False(t, c.HasWallet())

	_, err := c.PayInvoice(context.Background(), "lnbc1")
	assert.ErrorIs(t, err, wallet.ErrSignerUnavailable)
}

func TestWalletFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.WalletURI = "nostr+walletconnect://" + alice + "?relay=wss://wallet.example&secret=" + strings.Repeat("1", 64)
	cfg.PaymentTimeout = time.Second
	c := testClient(t, cfg)
	require.True(t, c.HasWallet())
	assert.Equal(t, time.Second, c.wallet.Timeout)
	assert.Equal(t, "wss://wallet.example", c.walletInfo.Relay)

	_, err := c.PayInvoice(context.Background(), "not an invoice")
	require.Error(t, err)
	assert.NotErrorIs(t, err, wallet.ErrSignerUnavailable)
}

func TestBadWalletURI(t *testing.T) {
	cfg := config.Default()
	cfg.WalletURI = "nostr+walletconnect://short"
	backend := cache.NewMemoryCache(10, time.Minute)
	defer backend.Close()
	_, err := newClient(cfg, relaytest.New(), backend, nil)
	assert.Error(t, err)
}
