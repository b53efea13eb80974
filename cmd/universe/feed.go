package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"nostr-universe/internal/augment"
	"nostr-universe/internal/client"
	"nostr-universe/internal/nips"
	"nostr-universe/internal/relay"
)

var feed = &cli.Command{
	Name:      "feed",
	Usage:     "shows what the accounts a pubkey follows are up to",
	ArgsUsage: "<npub or hex pubkey>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "type",
			Aliases: []string{"t"},
			Value:   "long",
			Usage:   "long, highlights, zaps, live or communities",
		},
		&cli.Int64Flag{Name: "min-zap", Value: 1000, Usage: "smallest zap to show, in sats"},
		&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 30},
		&cli.BoolFlag{Name: "json"},
	},
	Action: func(c *cli.Context) error {
		if c.Args().Len() == 0 {
			return cli.ShowSubcommandHelp(c)
		}
		pubkey, err := decodePubkey(c.Args().First())
		if err != nil {
			return err
		}
		asJSON := c.Bool("json")

		return withClient(c, func(cl *client.Client) error {
			ctx := c.Context
			contacts, err := followed(ctx, cl, pubkey)
			if err != nil {
				return err
			}

			switch c.String("type") {
			case "long":
				res, err := cl.Feeds.FollowedLongNotes(ctx, contacts)
				if err != nil || asJSON {
					return jsonOr(res, err, asJSON)
				}
				for _, n := range res {
					printEntry(authorName(n.Author, n.PubKey), n.Title, eventLink(n.Event), n.PublishedAt)
				}
			case "highlights":
				res, err := cl.Feeds.FollowedHighlights(ctx, contacts)
				if err != nil || asJSON {
					return jsonOr(res, err, asJSON)
				}
				for _, h := range res {
					printEntry(authorName(h.Author, h.PubKey), firstLine(h.Content, 200), h.SourceURL, h.CreatedAt)
				}
			case "zaps":
				res, err := cl.Feeds.FollowedZaps(ctx, contacts, c.Int64("min-zap"))
				if err != nil || asJSON {
					return jsonOr(res, err, asJSON)
				}
				for _, z := range res {
					title := fmt.Sprintf("%d sats to %s", z.AmountMsat/1000, authorName(z.TargetMeta, z.TargetPubkey))
					printEntry(authorName(z.SenderMeta, z.SenderPubkey), title, eventLink(z.Event), z.CreatedAt)
				}
			case "live":
				res, err := cl.Feeds.FollowedLiveEvents(ctx, contacts, c.Int("limit"))
				if err != nil || asJSON {
					return jsonOr(res, err, asJSON)
				}
				for _, l := range res {
					printEntry(authorName(l.HostMeta, l.Host), fmt.Sprintf("[%s] %s", l.Status, l.Title), eventLink(l.Event), l.Starts)
				}
			case "communities":
				res, err := cl.Feeds.FollowedCommunities(ctx, contacts)
				if err != nil || asJSON {
					return jsonOr(res, err, asJSON)
				}
				for _, cm := range res {
					printEntry(cm.Name, fmt.Sprintf("%d approved posts", cm.Posts), eventLink(cm.Event), cm.LastPostTime)
				}
			default:
				return fmt.Errorf("unknown feed type %q", c.String("type"))
			}
			return nil
		})
	},
}

// followed returns the pubkeys in the newest contact list of pubkey.
func followed(ctx context.Context, cl *client.Client, pubkey string) ([]string, error) {
	events, err := cl.Fetcher.FetchPubkeyEvents(ctx, relay.PubkeyQuery{
		Kind:    nips.KindContactList,
		Pubkeys: []string{pubkey},
		Limit:   1,
	})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("no contact list found for %s", pubkey)
	}
	contacts := augment.ContactPubkeys(events[0])
	if len(contacts) == 0 {
		return nil, fmt.Errorf("%s follows nobody", pubkey)
	}
	return contacts, nil
}
