package wallet

import (
	"context"
	"fmt"

	"github.com/nbd-wtf/go-nostr/nip04"

	"nostr-universe/internal/nostr"
	"nostr-universe/internal/types"
)

// Signer signs and encrypts on behalf of the paying app. It usually lives
// outside the process (browser extension, remote signer).
type Signer interface {
	PublicKey(ctx context.Context) (string, error)
	// SignEvent sets PubKey, ID and Sig.
	SignEvent(ctx context.Context, evt *types.Event) error
	Encrypt(ctx context.Context, peer, plaintext string) (string, error)
	Decrypt(ctx context.Context, peer, ciphertext string) (string, error)
}

// SecretSigner signs with a locally held secret, such as the app secret
// carried by a wallet connect URI. Encryption is NIP-04.
type SecretSigner struct {
	secret string
	pubkey string
}

var _ Signer = (*SecretSigner)(nil)

func NewSecretSigner(secretHex string) (*SecretSigner, error) {
	pubkey, err := nostr.PublicKeyHex(secretHex)
	if err != nil {
		return nil, err
	}
	return &SecretSigner{secret: secretHex, pubkey: pubkey}, nil
}

func (s *SecretSigner) PublicKey(ctx context.Context) (string, error) {
	return s.pubkey, nil
}

func (s *SecretSigner) SignEvent(ctx context.Context, evt *types.Event) error {
	return nostr.SignEvent(evt, s.secret)
}

func (s *SecretSigner) Encrypt(ctx context.Context, peer, plaintext string) (string, error) {
	key, err := nip04.ComputeSharedSecret(peer, s.secret)
	if err != nil {
		return "", fmt.Errorf("shared secret: %w", err)
	}
	return nip04.Encrypt(plaintext, key)
}

func (s *SecretSigner) Decrypt(ctx context.Context, peer, ciphertext string) (string, error) {
	key, err := nip04.ComputeSharedSecret(peer, s.secret)
	if err != nil {
		return "", fmt.Errorf("shared secret: %w", err)
	}
	return nip04.Decrypt(ciphertext, key)
}
