package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"nostr-universe/internal/client"
)

var search = &cli.Command{
	Name:      "search",
	Usage:     "full text search on the search relays",
	ArgsUsage: "<query>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "type",
			Aliases: []string{"t"},
			Value:   "notes",
			Usage:   "notes, long, live, communities or profiles",
		},
		&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 30},
		&cli.BoolFlag{Name: "json"},
	},
	Action: func(c *cli.Context) error {
		if c.Args().Len() == 0 {
			return cli.ShowSubcommandHelp(c)
		}
		query := c.Args().First()
		limit := c.Int("limit")
		asJSON := c.Bool("json")

		return withClient(c, func(cl *client.Client) error {
			ctx := c.Context
			switch c.String("type") {
			case "notes":
				res, err := cl.Feeds.SearchNotes(ctx, query, limit)
				if err != nil || asJSON {
					return jsonOr(res, err, asJSON)
				}
				for _, n := range res {
					printEntry(authorName(n.Author, n.PubKey), firstLine(n.Content, 120), eventLink(n.Event), n.CreatedAt)
				}
			case "long":
				res, err := cl.Feeds.SearchLongNotes(ctx, query, limit)
				if err != nil || asJSON {
					return jsonOr(res, err, asJSON)
				}
				for _, n := range res {
					printEntry(authorName(n.Author, n.PubKey), n.Title, eventLink(n.Event), n.PublishedAt)
				}
			case "live":
				res, err := cl.Feeds.SearchLiveEvents(ctx, query, limit)
				if err != nil || asJSON {
					return jsonOr(res, err, asJSON)
				}
				for _, l := range res {
					printEntry(authorName(l.HostMeta, l.Host), fmt.Sprintf("[%s] %s", l.Status, l.Title), eventLink(l.Event), l.Starts)
				}
			case "communities":
				res, err := cl.Feeds.SearchCommunities(ctx, query, limit)
				if err != nil || asJSON {
					return jsonOr(res, err, asJSON)
				}
				for _, cm := range res {
					printEntry(cm.Name, firstLine(cm.Description, 120), eventLink(cm.Event), cm.CreatedAt)
				}
			case "profiles":
				res, err := cl.Feeds.SearchProfiles(ctx, query, limit)
				if err != nil || asJSON {
					return jsonOr(res, err, asJSON)
				}
				for _, p := range res {
					printEntry(authorName(&p, p.PubKey), firstLine(p.Profile.About, 120), eventLink(p.Event), p.CreatedAt)
				}
			default:
				return fmt.Errorf("unknown search type %q", c.String("type"))
			}
			return nil
		})
	},
}

// jsonOr returns err, or prints v as JSON when asJSON is set.
func jsonOr(v any, err error, asJSON bool) error {
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(v)
	}
	return nil
}
