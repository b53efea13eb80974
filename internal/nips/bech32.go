package nips

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// Bech32Decode decodes a bech32 string into HRP and 8-bit data.
// The checksum is verified and no length limit is applied.
func Bech32Decode(bech string) (string, []byte, error) {
	hrp, data5, err := bech32.DecodeNoLimit(strings.ToLower(bech))
	if err != nil {
		return "", nil, err
	}
	data, err := bech32.ConvertBits(data5, 5, 8, false)
	if err != nil {
		return "", nil, fmt.Errorf("convert bits: %w", err)
	}
	return hrp, data, nil
}

// Bech32Encode encodes 8-bit data with the given HRP.
func Bech32Encode(hrp string, data []byte) (string, error) {
	data5, err := bech32.ConvertBits(data, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(hrp, data5)
}

func decodeKey(hexKey, what string) ([]byte, error) {
	b, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not hex", ErrInvalidAddress, what)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("%w: invalid %s length", ErrInvalidAddress, what)
	}
	return b, nil
}

// EncodePubkey encodes a hex pubkey to npub format
func EncodePubkey(hexPubkey string) (string, error) {
	b, err := decodeKey(hexPubkey, "pubkey")
	if err != nil {
		return "", err
	}
	return Bech32Encode("npub", b)
}

// EncodeEventID encodes a hex event ID to note format
func EncodeEventID(hexEventID string) (string, error) {
	b, err := decodeKey(hexEventID, "event id")
	if err != nil {
		return "", err
	}
	return Bech32Encode("note", b)
}

// DecodePubkey decodes an npub to a hex pubkey.
func DecodePubkey(npub string) (string, error) {
	hrp, data, err := Bech32Decode(npub)
	if err != nil {
		return "", err
	}
	if hrp != "npub" || len(data) != 32 {
		return "", errors.New("not an npub")
	}
	return hex.EncodeToString(data), nil
}
