package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gookit/color"
	"github.com/skip2/go-qrcode"
	"github.com/urfave/cli/v2"

	"nostr-universe/internal/client"
	"nostr-universe/internal/nips"
	"nostr-universe/internal/types"
)

var (
	fgName = color.New(color.FgGreen, color.OpBold)
	fgURL  = color.New(color.FgBlue)
	fgDim  = color.New(color.FgCyan)
)

func withClient(c *cli.Context, fn func(*client.Client) error) error {
	cl, err := client.New(c.Context, cfg)
	if err != nil {
		return err
	}
	defer cl.Close()
	return fn(cl)
}

// decodePubkey accepts npub, nprofile or hex.
func decodePubkey(s string) (string, error) {
	addr, err := nips.Decode(s)
	if err != nil {
		return "", err
	}
	switch a := addr.(type) {
	case nips.ProfileAddress:
		return a.PubKey, nil
	case nips.EventAddress:
		if a.Hex {
			return a.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %s is not a pubkey", nips.ErrInvalidAddress, s)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printQR(content string) error {
	q, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return err
	}
	fmt.Print(q.ToSmallString(false))
	return nil
}

func authorName(p *types.ProfileEvent, pubkey string) string {
	if p != nil {
		if name := p.Profile.BestName(); name != "" {
			return name
		}
	}
	if npub, err := nips.EncodePubkey(pubkey); err == nil {
		return npub[:16] + "..."
	}
	return pubkey
}

func printEntry(name, title, link string, ts int64) {
	fmt.Println(fgName.Sprint(name), fgDim.Sprint(time.Unix(ts, 0).Format(time.DateTime)))
	if title != "" {
		fmt.Println(title)
	}
	if link != "" {
		fmt.Println(fgURL.Sprint(link))
	}
	fmt.Println()
}

func eventLink(evt types.Event) string {
	s, err := nips.EncodeEvent(evt, nil)
	if err != nil {
		return evt.ID
	}
	return "nostr:" + s
}

func firstLine(s string, limit int) string {
	for i, r := range s {
		if r == '\n' {
			s = s[:i]
			break
		}
	}
	runes := []rune(s)
	if len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return s
}
