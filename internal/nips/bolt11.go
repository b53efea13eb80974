package nips

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// ErrNoAmount is returned for invoices that leave the amount to the payer.
var ErrNoAmount = errors.New("invoice has no amount")

// Invoice is the part of a BOLT11 payment request the client needs.
type Invoice struct {
	Raw        string
	Network    string // bc, tb, bcrt, ...
	AmountMsat int64
	HasAmount  bool
}

const msatPerBTC = 100_000_000_000

// ParseInvoice checks the bech32 checksum and reads the amount from the HRP.
func ParseInvoice(s string) (Invoice, error) {
	raw := strings.TrimSpace(s)
	lower := strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(raw, "lightning:"), "LIGHTNING:"))
	hrp, _, err := bech32.DecodeNoLimit(lower)
	if err != nil {
		return Invoice{}, fmt.Errorf("bolt11: %w", err)
	}
	if !strings.HasPrefix(hrp, "ln") {
		return Invoice{}, errors.New("bolt11: missing ln prefix")
	}
	rest := hrp[2:]
	i := strings.IndexAny(rest, "0123456789")
	if i < 0 {
		return Invoice{Raw: lower, Network: rest}, nil
	}
	inv := Invoice{Raw: lower, Network: rest[:i]}
	msat, err := parseAmount(rest[i:])
	if err != nil {
		return Invoice{}, err
	}
	inv.AmountMsat = msat
	inv.HasAmount = true
	return inv, nil
}

// msat per unit of each amount multiplier; pico is handled apart
var multipliers = map[byte]int64{
	0:   msatPerBTC,
	'm': msatPerBTC / 1_000,
	'u': msatPerBTC / 1_000_000,
	'n': msatPerBTC / 1_000_000_000,
}

func parseAmount(s string) (int64, error) {
	multiplier := byte(0)
	if last := s[len(s)-1]; last < '0' || last > '9' {
		multiplier = last
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("bolt11: bad amount %q", s)
	}
	if multiplier == 'p' {
		if n%10 != 0 {
			return 0, fmt.Errorf("bolt11: sub-millisatoshi amount %q", s)
		}
		return n / 10, nil
	}
	factor, ok := multipliers[multiplier]
	if !ok {
		return 0, fmt.Errorf("bolt11: unknown multiplier %q", multiplier)
	}
	if n > math.MaxInt64/factor {
		return 0, fmt.Errorf("bolt11: amount %q out of range", s)
	}
	return n * factor, nil
}

// DecodeInvoiceAmount returns the invoice amount in millisatoshis.
func DecodeInvoiceAmount(bolt11 string) (int64, error) {
	inv, err := ParseInvoice(bolt11)
	if err != nil {
		return 0, err
	}
	if !inv.HasAmount {
		return 0, ErrNoAmount
	}
	return inv.AmountMsat, nil
}

var (
	bech32Regex  = regexp.MustCompile(`[a-z]{1,83}1[023456789acdefghjklmnpqrstuvwxyz]{6,}`)
	invoiceRegex = regexp.MustCompile(`^(lnbcrt|lntb|lnbc|LNBCRT|LNTB|LNBC)([0-9]+[a-zA-Z0-9]+)$`)
)

// ExtractBech32 returns the first npub, nprofile, note, nevent or naddr found in s.
// With allowHex, a string that is itself a 64-char hex id is returned as is.
func ExtractBech32(s string, allowHex bool) string {
	for _, candidate := range bech32Regex.FindAllString(s, -1) {
		addr, err := Decode(candidate)
		if err != nil {
			continue
		}
		if ea, ok := addr.(EventAddress); ok && ea.Hex {
			continue
		}
		return candidate
	}
	if allowHex && isHex64(s) {
		return s
	}
	return ""
}

// ExtractInvoice returns s as a mainnet invoice if it is one.
func ExtractInvoice(s string) (Invoice, bool) {
	s = strings.TrimSpace(s)
	if !invoiceRegex.MatchString(s) || !strings.HasPrefix(strings.ToLower(s), "lnbc") {
		return Invoice{}, false
	}
	inv, err := ParseInvoice(s)
	if err != nil {
		return Invoice{}, false
	}
	return inv, true
}
