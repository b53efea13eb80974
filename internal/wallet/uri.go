package wallet

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const uriScheme = "nostr+walletconnect://"

// Info describes a wallet connection: the wallet service pubkey, the relay
// it listens on and the secret the app signs requests with.
type Info struct {
	WalletPubkey string
	Relay        string
	Secret       string
	Lud16        string
}

// ParseURI parses nostr+walletconnect://<wallet-pubkey>?relay=<wss://...>&secret=<hex>
func ParseURI(uri string) (Info, error) {
	if !strings.HasPrefix(uri, uriScheme) {
		return Info{}, errors.New("invalid NWC URI: must start with " + uriScheme)
	}

	// url.Parse rejects the compound scheme
	u, err := url.Parse(strings.Replace(uri, uriScheme, "https://", 1))
	if err != nil {
		return Info{}, fmt.Errorf("invalid NWC URI: %w", err)
	}

	info := Info{
		WalletPubkey: strings.ToLower(u.Host),
		Relay:        u.Query().Get("relay"),
		Secret:       strings.ToLower(u.Query().Get("secret")),
		Lud16:        u.Query().Get("lud16"),
	}
	if !isHexKey(info.WalletPubkey) {
		return Info{}, errors.New("invalid wallet pubkey: must be 64 hex characters")
	}
	if info.Relay == "" {
		return Info{}, errors.New("NWC URI must include relay parameter")
	}
	if !strings.HasPrefix(info.Relay, "wss://") && !strings.HasPrefix(info.Relay, "ws://") {
		return Info{}, errors.New("invalid relay URL: must start with wss:// or ws://")
	}
	if info.Secret == "" {
		return Info{}, errors.New("NWC URI must include secret parameter")
	}
	if !isHexKey(info.Secret) {
		return Info{}, errors.New("invalid secret: must be 64 hex characters")
	}
	return info, nil
}

func isHexKey(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
