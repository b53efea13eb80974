// Package client assembles the relay pool, caches, fetch layer, resolver,
// feeds, streams and wallet into one value owned by the caller.
package client

import (
	"context"
	"fmt"
	"log/slog"

	"nostr-universe/internal/apps"
	"nostr-universe/internal/augment"
	"nostr-universe/internal/cache"
	"nostr-universe/internal/config"
	"nostr-universe/internal/feeds"
	"nostr-universe/internal/metrics"
	"nostr-universe/internal/nips"
	"nostr-universe/internal/relay"
	"nostr-universe/internal/stream"
	"nostr-universe/internal/types"
	"nostr-universe/internal/wallet"
)

type Client struct {
	Metrics   *metrics.Collector
	Events    *cache.EventCache
	Backend   cache.Backend
	Fetcher   *relay.Fetcher
	Augmenter *augment.Augmenter
	Resolver  *apps.Resolver
	Feeds     *feeds.Feeds
	Profiles  *stream.ProfileChannel
	Contacts  *stream.ContactListChannel

	pool       *relay.Pool
	wallet     *wallet.Wallet
	walletInfo wallet.Info
}

// New connects nothing up front: relay connections open lazily on first
// use. The handler cache goes to Redis when cfg.RedisURL is reachable.
func New(ctx context.Context, cfg *config.Config) (*Client, error) {
	m := metrics.NewCollector("universe")
	pool := relay.NewPool(cfg.PoolConfig(), m)
	backend, kind := cache.NewBackend(ctx, cfg.RedisURL, cfg.CacheConfig())
	slog.Info("client: cache backend ready", "backend", kind)

	c, err := newClient(cfg, pool, backend, m)
	if err != nil {
		pool.Close()
		backend.Close()
		return nil, err
	}
	c.pool = pool
	return c, nil
}

func newClient(cfg *config.Config, source relay.Source, backend cache.Backend, m *metrics.Collector) (*Client, error) {
	var (
		w    *wallet.Wallet
		info wallet.Info
	)
	if cfg.WalletURI != "" {
		var err error
		info, err = wallet.ParseURI(cfg.WalletURI)
		if err != nil {
			return nil, fmt.Errorf("wallet uri: %w", err)
		}
		signer, err := wallet.NewSecretSigner(info.Secret)
		if err != nil {
			return nil, fmt.Errorf("wallet secret: %w", err)
		}
		w = wallet.New(source, signer, m)
		w.Timeout = cfg.PaymentTimeout
	}

	events := cache.NewEventCache()
	fetcher := relay.NewFetcher(source, events, cfg.FetcherConfig(), m)
	aug := augment.New(fetcher)

	cc := cfg.CacheConfig()
	rc := apps.DefaultConfig()
	rc.KindAppsTTL = cc.KindAppsTTL
	rc.CatalogueTTL = cc.CatalogueTTL

	return &Client{
		Metrics:    m,
		Events:     events,
		Backend:    backend,
		Fetcher:    fetcher,
		Augmenter:  aug,
		Resolver:   apps.NewResolver(fetcher, backend, rc, m),
		Feeds:      feeds.New(fetcher, aug),
		Profiles:   stream.NewProfileChannel(source, cfg.ReadRelays, m),
		Contacts:   stream.NewContactListChannel(source, cfg.ReadRelays, aug, m),
		wallet:     w,
		walletInfo: info,
	}, nil
}

// Open extracts the first NIP-19 entity or hex id from text and resolves
// the apps that can show it.
func (c *Client) Open(ctx context.Context, text string) (types.AppInfo, nips.Pointer, error) {
	addr := nips.ExtractBech32(text, true)
	if addr == "" {
		return types.AppInfo{}, nips.Pointer{}, fmt.Errorf("%w: nothing to open in %q", nips.ErrInvalidAddress, text)
	}
	return c.Resolver.ResolveAppsForAddress(ctx, addr, nil)
}

// HasWallet reports whether a wallet connection is configured.
func (c *Client) HasWallet() bool {
	return c.wallet != nil
}

// PayInvoice pays text, a BOLT11 invoice with an optional lightning:
// prefix, through the configured wallet connection.
func (c *Client) PayInvoice(ctx context.Context, text string) (wallet.PayResult, error) {
	if c.wallet == nil {
		return wallet.PayResult{}, wallet.ErrSignerUnavailable
	}
	inv, ok := nips.ExtractInvoice(text)
	if !ok {
		return wallet.PayResult{}, fmt.Errorf("no lightning invoice in %q", text)
	}
	return c.wallet.PayInvoice(ctx, c.walletInfo, inv.Raw)
}

// Close stops the streams and releases connections.
func (c *Client) Close() {
	c.Profiles.Close()
	c.Contacts.Close()
	if c.pool != nil {
		c.pool.Close()
	}
	if err := c.Backend.Close(); err != nil {
		slog.Debug("client: cache close failed", "error", err)
	}
}
