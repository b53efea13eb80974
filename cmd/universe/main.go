package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"nostr-universe/internal/config"
	"nostr-universe/internal/logging"
)

var cfg *config.Config

var app = &cli.App{
	Name:  "universe",
	Usage: "find the nostr apps that open an event, browse feeds and pay invoices",
	Commands: []*cli.Command{
		open,
		catalogue,
		event,
		search,
		feed,
		watch,
		pay,
	},
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to a JSON or YAML config file",
			EnvVars: []string{"UNIVERSE_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "debug, info, warn or error",
		},
	},
	Before: func(c *cli.Context) error {
		loaded, err := config.Load(c.String("config"))
		if err != nil {
			return err
		}
		if lvl := c.String("log-level"); lvl != "" {
			loaded.LogLevel = lvl
		}
		logging.Init(loaded.LogLevel)
		cfg = loaded
		return nil
	},
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
