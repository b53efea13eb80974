package nostr

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/minio/sha256-simd"

	"nostr-universe/internal/nips"
	"nostr-universe/internal/types"
)

// ComputeEventID hashes the NIP-01 serialization [0,pubkey,created_at,kind,tags,content].
func ComputeEventID(evt *types.Event) string {
	tags := evt.Tags
	if tags == nil {
		tags = [][]string{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode([]interface{}{0, evt.PubKey, evt.CreatedAt, evt.Kind, tags, evt.Content}); err != nil {
		return ""
	}

	hash := sha256.Sum256(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
	return hex.EncodeToString(hash[:])
}

// ValidateEventSignature verifies Schnorr signature for a Nostr event
func ValidateEventSignature(evt *types.Event) bool {
	if len(evt.Sig) != 128 || len(evt.PubKey) != 64 {
		return false
	}

	sigBytes, err := hex.DecodeString(evt.Sig)
	if err != nil {
		return false
	}
	pubKeyBytes, err := hex.DecodeString(evt.PubKey)
	if err != nil {
		return false
	}
	idBytes, err := hex.DecodeString(evt.ID)
	if err != nil {
		return false
	}

	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false
	}
	pubKey, err := schnorr.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false
	}

	return sig.Verify(idBytes, pubKey)
}

// PublicKeyHex derives the x-only public key for a hex secret key.
func PublicKeyHex(secretHex string) (string, error) {
	secret, err := hex.DecodeString(secretHex)
	if err != nil || len(secret) != 32 {
		return "", errors.New("invalid secret key")
	}
	priv, _ := btcec.PrivKeyFromBytes(secret)
	return hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey())), nil
}

// SignEvent sets PubKey, ID and Sig on evt using a hex secret key.
func SignEvent(evt *types.Event, secretHex string) error {
	secret, err := hex.DecodeString(secretHex)
	if err != nil || len(secret) != 32 {
		return errors.New("invalid secret key")
	}
	priv, _ := btcec.PrivKeyFromBytes(secret)
	evt.PubKey = hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey()))
	evt.ID = ComputeEventID(evt)

	idBytes, err := hex.DecodeString(evt.ID)
	if err != nil {
		return fmt.Errorf("event id: %w", err)
	}
	sig, err := schnorr.Sign(priv, idBytes)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}
	evt.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

// ParseEventFromInterface converts raw websocket data to Event (avoids JSON
// re-encoding). Events without a valid id and signature are rejected.
func ParseEventFromInterface(data interface{}) (types.Event, bool) {
	m, ok := data.(map[string]interface{})
	if !ok {
		return types.Event{}, false
	}

	evt := types.Event{}

	if id, ok := m["id"].(string); ok {
		evt.ID = id
	}
	if pk, ok := m["pubkey"].(string); ok {
		evt.PubKey = pk
	}
	if createdAt, ok := m["created_at"].(float64); ok {
		evt.CreatedAt = int64(createdAt)
	}
	if kind, ok := m["kind"].(float64); ok {
		evt.Kind = int(kind)
	}
	if content, ok := m["content"].(string); ok {
		evt.Content = content
	}
	if sig, ok := m["sig"].(string); ok {
		evt.Sig = sig
	}

	if tags, ok := m["tags"].([]interface{}); ok {
		evt.Tags = make([][]string, 0, len(tags))
		for _, tag := range tags {
			if tagArr, ok := tag.([]interface{}); ok {
				strTag := make([]string, 0, len(tagArr))
				for _, elem := range tagArr {
					if s, ok := elem.(string); ok {
						strTag = append(strTag, s)
					}
				}
				evt.Tags = append(evt.Tags, strTag)
			}
		}
	}

	if evt.ID == "" || evt.Sig == "" {
		return types.Event{}, false
	}
	if ComputeEventID(&evt) != evt.ID || !ValidateEventSignature(&evt) {
		slog.Warn("event signature validation failed", "event_id", ShortID(evt.ID))
		return types.Event{}, false
	}
	return evt, true
}

// ParseProfile decodes kind 0 content. Malformed JSON yields an empty profile.
func ParseProfile(evt types.Event) types.ProfileInfo {
	var p types.ProfileInfo
	if evt.Content != "" {
		if err := json.Unmarshal([]byte(evt.Content), &p); err != nil {
			slog.Debug("bad profile json", "pubkey", ShortID(evt.PubKey), "error", err)
			p = types.ProfileInfo{}
		}
	}
	p.PubKey = evt.PubKey
	p.Npub, _ = nips.EncodePubkey(evt.PubKey)
	return p
}

// ShortID truncates ID/pubkey to 12 chars for logging
func ShortID(id string) string {
	if len(id) >= 12 {
		return id[:12]
	}
	return id
}
