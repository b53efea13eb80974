package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"nostr-universe/internal/apps"
	"nostr-universe/internal/client"
)

var open = &cli.Command{
	Name:  "open",
	Usage: "lists the apps that can open a nip19 entity or event id",
	Description: `example usage:
        universe open "have a look at nostr:note1..."
        universe open --json naddr1...`,
	ArgsUsage: "<text containing nip19 code>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "json", Usage: "print the full handler info as JSON"},
		&cli.BoolFlag{Name: "qr", Usage: "print a QR code of the best app link"},
	},
	Action: func(c *cli.Context) error {
		if c.Args().Len() == 0 {
			return cli.ShowSubcommandHelp(c)
		}
		return withClient(c, func(cl *client.Client) error {
			info, ptr, err := cl.Open(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(info)
			}

			best := apps.BestApps(info)
			if len(best) == 0 {
				fmt.Printf("no apps found for kind %d\n", ptr.Kind)
				return nil
			}
			for _, a := range best {
				fmt.Println(fgName.Sprint(a.Name), fgURL.Sprint(a.URL))
			}
			if c.Bool("qr") {
				return printQR(best[0].URL)
			}
			return nil
		})
	},
}

var catalogue = &cli.Command{
	Name:  "apps",
	Usage: "lists web apps that announce themselves as handlers",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "limit", Value: 50, Usage: "maximum number of apps to print"},
		&cli.BoolFlag{Name: "json"},
	},
	Action: func(c *cli.Context) error {
		return withClient(c, func(cl *client.Client) error {
			list, err := cl.Resolver.FetchApps(c.Context)
			if err != nil {
				return err
			}
			if limit := c.Int("limit"); limit > 0 && len(list) > limit {
				list = list[:limit]
			}
			if c.Bool("json") {
				return printJSON(list)
			}
			for _, a := range list {
				fmt.Println(fgName.Sprint(a.Name), fgURL.Sprint(a.URL))
				if a.About != "" {
					fmt.Println("  " + firstLine(a.About, 100))
				}
			}
			return nil
		})
	},
}

var event = &cli.Command{
	Name:      "event",
	Usage:     "fetches the event a nip19 code or hex id points to",
	ArgsUsage: "<nip19 code>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() == 0 {
			return cli.ShowSubcommandHelp(c)
		}
		return withClient(c, func(cl *client.Client) error {
			evt, err := cl.Feeds.EventByBech32(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			return printJSON(evt)
		})
	},
}
