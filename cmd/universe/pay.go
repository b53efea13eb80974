package main

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"nostr-universe/internal/client"
	"nostr-universe/internal/nips"
	"nostr-universe/internal/wallet"
)

var pay = &cli.Command{
	Name:  "pay",
	Usage: "pays a lightning invoice through the wallet connect uri in NWC_URI",
	Description: `example usage:
        NWC_URI='nostr+walletconnect://<pubkey>?relay=wss://...&secret=<hex>' universe pay lnbc10u1...
        universe pay --qr lnbc10u1...   # only show the invoice as a QR code`,
	ArgsUsage: "<bolt11 invoice>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "qr", Usage: "print the invoice as a QR code instead of paying it"},
	},
	Action: func(c *cli.Context) error {
		if c.Args().Len() == 0 {
			return cli.ShowSubcommandHelp(c)
		}
		text := c.Args().First()
		inv, ok := nips.ExtractInvoice(text)
		if !ok {
			return fmt.Errorf("not a lightning invoice: %q", text)
		}
		if inv.HasAmount {
			fmt.Println(fgName.Sprint(inv.AmountMsat/1000, " sats"))
		}
		if c.Bool("qr") {
			return printQR("lightning:" + inv.Raw)
		}

		return withClient(c, func(cl *client.Client) error {
			res, err := cl.PayInvoice(c.Context, inv.Raw)
			var perr *wallet.PaymentError
			switch {
			case errors.Is(err, wallet.ErrSignerUnavailable):
				return errors.New("no wallet configured, set NWC_URI or walletUri")
			case errors.As(err, &perr):
				return fmt.Errorf("wallet refused payment: %s", perr.Message)
			case err != nil:
				return err
			}
			fmt.Println("paid, preimage", fgURL.Sprint(res.Preimage))
			return nil
		})
	},
}
