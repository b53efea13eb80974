package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"nostr-universe/internal/client"
	"nostr-universe/internal/types"
)

var watch = &cli.Command{
	Name:      "watch",
	Usage:     "follows a pubkey's contact list and its contacts' profiles until interrupted",
	ArgsUsage: "<npub or hex pubkey>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "metrics", Usage: "serve prometheus metrics on the configured address"},
	},
	Action: func(c *cli.Context) error {
		if c.Args().Len() == 0 {
			return cli.ShowSubcommandHelp(c)
		}
		pubkey, err := decodePubkey(c.Args().First())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return withClient(c, func(cl *client.Client) error {
			if c.Bool("metrics") {
				srv := &http.Server{Addr: cfg.MetricsAddr, Handler: cl.Metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						slog.Error("metrics server failed", "addr", cfg.MetricsAddr, "error", err)
					}
				}()
				defer srv.Shutdown(context.Background())
				slog.Info("serving metrics", "addr", cfg.MetricsAddr)
			}

			err := cl.Contacts.Subscribe(ctx, pubkey, func(list types.ContactList) {
				fmt.Println(fgName.Sprint("contact list"), fgDim.Sprint(time.Unix(list.CreatedAt, 0).Format(time.DateTime)),
					len(list.ContactPubkeys), "contacts")
				if err := cl.Profiles.Subscribe(ctx, list.ContactPubkeys, printProfile); err != nil {
					slog.Warn("watch: profile subscription failed", "error", err)
				}
			})
			if err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		})
	},
}

func printProfile(p types.ProfileEvent) {
	fmt.Println(" ", fgName.Sprint(authorName(&p, p.PubKey)), fgURL.Sprint(p.Profile.Nip05))
}
