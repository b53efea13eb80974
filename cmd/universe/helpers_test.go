package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nostr-universe/internal/nips"
)

func TestDecodePubkey(t *testing.T) {
	pk := strings.Repeat("ab", 32)
	npub, err := nips.EncodePubkey(pk)
	require.NoError(t, err)

	for _, in := range []string{pk, npub, "nostr:" + npub} {
		got, err := decodePubkey(in)
		require.NoError(t, err, in)
		assert.Equal(t, pk, got)
	}

	note, err := nips.EncodeEventID(pk)
	require.NoError(t, err)
	_, err = decodePubkey(note)
	assert.ErrorIs(t, err, nips.ErrInvalidAddress)
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "hello", firstLine("hello\nworld", 10))
	assert.Equal(t, "héll...", firstLine("héllo there", 4))
	assert.Equal(t, "", firstLine("", 4))
}
