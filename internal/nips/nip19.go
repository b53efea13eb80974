package nips

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidAddress is returned for strings that are not a supported NIP-19 entity or hex id.
var ErrInvalidAddress = errors.New("invalid address")

// Address is one of ProfileAddress, EventAddress or EntityAddress.
type Address interface {
	// Prefix is the bech32 HRP the address encodes to.
	Prefix() string
}

// ProfileAddress points at a pubkey (npub, nprofile).
type ProfileAddress struct {
	PubKey string
	Relays []string
}

// EventAddress points at a single immutable event (note, nevent, bare hex id).
type EventAddress struct {
	ID      string
	Relays  []string
	Author  string
	Kind    int
	HasKind bool
	Hex     bool
}

// EntityAddress points at a replaceable entity by kind, author and d identifier (naddr).
type EntityAddress struct {
	Kind       int
	PubKey     string
	Identifier string
	Relays     []string
}

func (a ProfileAddress) Prefix() string {
	if len(a.Relays) > 0 {
		return "nprofile"
	}
	return "npub"
}

func (a EventAddress) Prefix() string {
	if len(a.Relays) > 0 || a.Author != "" || a.HasKind {
		return "nevent"
	}
	return "note"
}

func (a EntityAddress) Prefix() string { return "naddr" }

// TLV type constants for NIP-19
const (
	tlvTypeSpecial = 0 // event id, pubkey, or d identifier depending on entity
	tlvTypeRelay   = 1
	tlvTypeAuthor  = 2
	tlvTypeKind    = 3 // 32-bit big-endian
)

// Decode parses an npub, nprofile, note, nevent, naddr or a bare 64-char hex event id.
func Decode(s string) (Address, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "nostr:"))

	hrp, data, err := Bech32Decode(s)
	if err != nil {
		if isHex64(s) {
			return EventAddress{ID: strings.ToLower(s), Hex: true}, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}

	switch hrp {
	case "npub":
		if len(data) != 32 {
			return nil, fmt.Errorf("%w: bad npub length", ErrInvalidAddress)
		}
		return ProfileAddress{PubKey: hex.EncodeToString(data)}, nil

	case "note":
		if len(data) != 32 {
			return nil, fmt.Errorf("%w: bad note length", ErrInvalidAddress)
		}
		return EventAddress{ID: hex.EncodeToString(data)}, nil

	case "nprofile":
		var a ProfileAddress
		err := walkTLV(data, func(typ byte, value []byte) {
			switch typ {
			case tlvTypeSpecial:
				if len(value) == 32 {
					a.PubKey = hex.EncodeToString(value)
				}
			case tlvTypeRelay:
				a.Relays = append(a.Relays, string(value))
			}
		})
		if err != nil || a.PubKey == "" {
			return nil, fmt.Errorf("%w: nprofile missing pubkey", ErrInvalidAddress)
		}
		return a, nil

	case "nevent":
		var a EventAddress
		err := walkTLV(data, func(typ byte, value []byte) {
			switch typ {
			case tlvTypeSpecial:
				if len(value) == 32 {
					a.ID = hex.EncodeToString(value)
				}
			case tlvTypeRelay:
				a.Relays = append(a.Relays, string(value))
			case tlvTypeAuthor:
				if len(value) == 32 {
					a.Author = hex.EncodeToString(value)
				}
			case tlvTypeKind:
				if len(value) == 4 {
					a.Kind = int(binary.BigEndian.Uint32(value))
					a.HasKind = true
				}
			}
		})
		if err != nil || a.ID == "" {
			return nil, fmt.Errorf("%w: nevent missing event id", ErrInvalidAddress)
		}
		return a, nil

	case "naddr":
		var a EntityAddress
		hasKind := false
		err := walkTLV(data, func(typ byte, value []byte) {
			switch typ {
			case tlvTypeSpecial:
				a.Identifier = string(value)
			case tlvTypeRelay:
				a.Relays = append(a.Relays, string(value))
			case tlvTypeAuthor:
				if len(value) == 32 {
					a.PubKey = hex.EncodeToString(value)
				}
			case tlvTypeKind:
				if len(value) == 4 {
					a.Kind = int(binary.BigEndian.Uint32(value))
					hasKind = true
				}
			}
		})
		if err != nil || !hasKind || a.PubKey == "" {
			return nil, fmt.Errorf("%w: naddr missing required fields", ErrInvalidAddress)
		}
		return a, nil
	}

	return nil, fmt.Errorf("%w: unsupported prefix %q", ErrInvalidAddress, hrp)
}

func walkTLV(data []byte, fn func(typ byte, value []byte)) error {
	for i := 0; i < len(data); {
		if i+2 > len(data) {
			return errors.New("truncated tlv header")
		}
		typ := data[i]
		length := int(data[i+1])
		i += 2
		if i+length > len(data) {
			return errors.New("truncated tlv value")
		}
		fn(typ, data[i:i+length])
		i += length
	}
	return nil
}

func isHex64(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// Encode encodes a replaceable address: npub or nprofile for metadata,
// naddr for every other replaceable kind.
func Encode(kind int, pubkey, identifier string, relays []string) (string, error) {
	switch {
	case kind == KindMetadata:
		return EncodeAddress(ProfileAddress{PubKey: pubkey, Relays: relays})
	case IsReplaceable(kind):
		return EncodeNAddr(kind, pubkey, identifier, relays)
	}
	return "", fmt.Errorf("%w: kind %d is not replaceable", ErrInvalidAddress, kind)
}

// EncodeAddress encodes any Address back to its bech32 form.
// Hex event addresses come back as the hex id.
func EncodeAddress(addr Address) (string, error) {
	switch a := addr.(type) {
	case ProfileAddress:
		if len(a.Relays) == 0 {
			return EncodePubkey(a.PubKey)
		}
		return EncodeNProfile(a.PubKey, a.Relays)
	case EventAddress:
		if a.Hex {
			return a.ID, nil
		}
		if a.Prefix() == "note" {
			return EncodeEventID(a.ID)
		}
		kind := -1
		if a.HasKind {
			kind = a.Kind
		}
		return EncodeNEvent(a.ID, a.Relays, a.Author, kind)
	case EntityAddress:
		return EncodeNAddr(a.Kind, a.PubKey, a.Identifier, a.Relays)
	}
	return "", fmt.Errorf("%w: unknown address type %T", ErrInvalidAddress, addr)
}

// EncodeNProfile encodes a pubkey with relay hints.
func EncodeNProfile(pubkeyHex string, relays []string) (string, error) {
	pk, err := decodeKey(pubkeyHex, "pubkey")
	if err != nil {
		return "", err
	}
	tlv := appendTLV(nil, tlvTypeSpecial, pk)
	tlv = appendRelays(tlv, relays)
	return Bech32Encode("nprofile", tlv)
}

// EncodeNEvent encodes an event id with optional relays, author and kind (kind < 0 omits it).
func EncodeNEvent(eventIDHex string, relays []string, authorHex string, kind int) (string, error) {
	id, err := decodeKey(eventIDHex, "event id")
	if err != nil {
		return "", err
	}
	tlv := appendTLV(nil, tlvTypeSpecial, id)
	tlv = appendRelays(tlv, relays)
	if authorHex != "" {
		author, err := decodeKey(authorHex, "author")
		if err != nil {
			return "", err
		}
		tlv = appendTLV(tlv, tlvTypeAuthor, author)
	}
	if kind >= 0 {
		tlv = appendTLV(tlv, tlvTypeKind, kindBytes(kind))
	}
	return Bech32Encode("nevent", tlv)
}

// EncodeNAddr encodes an naddr from kind, pubkey (hex), d identifier and relay hints.
func EncodeNAddr(kind int, pubkeyHex string, identifier string, relays []string) (string, error) {
	pk, err := decodeKey(pubkeyHex, "pubkey")
	if err != nil {
		return "", err
	}
	if len(identifier) > 255 {
		return "", fmt.Errorf("%w: identifier too long", ErrInvalidAddress)
	}
	if kind < 0 {
		return "", fmt.Errorf("%w: negative kind", ErrInvalidAddress)
	}
	tlv := appendTLV(nil, tlvTypeSpecial, []byte(identifier))
	tlv = appendRelays(tlv, relays)
	tlv = appendTLV(tlv, tlvTypeAuthor, pk)
	tlv = appendTLV(tlv, tlvTypeKind, kindBytes(kind))
	return Bech32Encode("naddr", tlv)
}

func appendTLV(buf []byte, typ byte, value []byte) []byte {
	buf = append(buf, typ, byte(len(value)))
	return append(buf, value...)
}

// appendRelays skips hints that do not fit a single TLV entry.
func appendRelays(buf []byte, relays []string) []byte {
	for _, r := range relays {
		if r == "" || len(r) > 255 {
			continue
		}
		buf = appendTLV(buf, tlvTypeRelay, []byte(r))
	}
	return buf
}

func kindBytes(kind int) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(kind))
	return b
}
