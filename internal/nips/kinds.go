package nips

import (
	"strconv"

	"nostr-universe/internal/types"
)

// Event kinds used by the client
const (
	KindMetadata          = 0
	KindNote              = 1
	KindContactList       = 3
	KindCommunityApproval = 4550
	KindZap               = 9735
	KindHighlight         = 9802
	KindNWCRequest        = 23194
	KindNWCResponse       = 23195
	KindBookmarks         = 30001
	KindLongNote          = 30023
	KindLiveEvent         = 30311
	KindAppHandler        = 31990
	KindCommunity         = 34550
)

// IsParameterized reports whether kind is parameterized replaceable (NIP-01 addressable).
func IsParameterized(kind int) bool {
	return kind >= 30000 && kind < 40000
}

// IsListKind reports whether kind is the contact list or a plain replaceable list.
func IsListKind(kind int) bool {
	return kind == KindContactList || (kind >= 10000 && kind < 20000)
}

// IsReplaceable reports whether only the newest event per address is kept for kind.
func IsReplaceable(kind int) bool {
	return kind == KindMetadata || IsListKind(kind) || IsParameterized(kind)
}

// AddressKey formats a replaceable address as kind:pubkey:identifier.
func AddressKey(kind int, pubkey, identifier string) string {
	return strconv.Itoa(kind) + ":" + pubkey + ":" + identifier
}

// ReplaceableKey returns the identity used for caching and dedup:
// kind:pubkey:d for replaceable kinds, the event id otherwise.
// Only parameterized kinds carry the d value.
func ReplaceableKey(evt types.Event) string {
	if !IsReplaceable(evt.Kind) {
		return evt.ID
	}
	identifier := ""
	if IsParameterized(evt.Kind) {
		identifier = evt.Identifier()
	}
	return AddressKey(evt.Kind, evt.PubKey, identifier)
}
