// ABOUTME: Tests for BRC-42 derivation and BRC-29 script construction
// ABOUTME: Verifies sender and recipient agree on the one-time key

package brc29

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	k, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return k
}

func TestInvoiceNumber(t *testing.T) {
	inv, err := InvoiceNumber("cHJlZml4", "c3VmZml4")
	require.NoError(t, err)
	assert.Equal(t, "2-3241645161d8-cHJlZml4 c3VmZml4", inv)

	_, err = InvoiceNumber("", "c3VmZml4")
	assert.ErrorIs(t, err, ErrEmptyPart)
}

func TestNewDerivationPart(t *testing.T) {
	a, err := NewDerivationPart()
	require.NoError(t, err)
	b, err := NewDerivationPart()
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, PartSize)
	assert.NotEqual(t, a, b)
}

func TestSenderAndRecipientAgree(t *testing.T) {
	sender := newKey(t)
	recipient := newKey(t)
	inv, err := InvoiceNumber("AAAAAAAAAAAAAAAAAAAAAA==", "BBBBBBBBBBBBBBBBBBBBBB==")
	require.NoError(t, err)

	childPriv, err := DerivePrivateKey(recipient, sender.PubKey(), inv)
	require.NoError(t, err)
	childPub, err := DerivePublicKey(sender, recipient.PubKey(), inv)
	require.NoError(t, err)

	assert.True(t, childPriv.PubKey().IsEqual(childPub))
	assert.False(t, childPub.IsEqual(recipient.PubKey()))
}

// Published BRC-42 vectors; any wallet implementing the standard agrees.
func TestDerivePrivateKey_KnownVectors(t *testing.T) {
	tests := []struct {
		name      string
		recipient string
		sender    string
		invoice   string
		want      string
	}{
		{
			name:      "vector 1",
			recipient: "6a1751169c111b4667a6539ee1be6b7cd9f6e9c8fe011a5f2fe31e03a15e0ede",
			sender:    "033f9160df035156f1c48e75eae99914fa1a1546bec19781e8eddb900200bff9d1",
			invoice:   "f3WCaUmnN9U=",
			want:      "761656715bbfa172f8f9f58f5af95d9d0dfd69014cfdcacc9a245a10ff8893ef",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, err := ParsePrivateKey(tt.recipient)
			require.NoError(t, err)
			sender, err := ParsePublicKey(tt.sender)
			require.NoError(t, err)

			child, err := DerivePrivateKey(root, sender, tt.invoice)
			require.NoError(t, err)
			assert.Equal(t, tt.want, hex.EncodeToString(child.Serialize()))
		})
	}
}

func TestDerivePublicKey_KnownVectors(t *testing.T) {
	tests := []struct {
		name      string
		sender    string
		recipient string
		invoice   string
		want      string
	}{
		{
			name:      "vector 1",
			sender:    "583755110a8c059de5cd81b8a04e1be884c46083ade3f779c1e022f6f89da94c",
			recipient: "02c0c1e1a1f7d247827d1bcf399f0ef2deef7695c322fd91a01a91378f101b6ffc",
			invoice:   "IBioA4D/OaE=",
			want:      "03c1bf5baadee39721ae8c9882b3cf324f0bf3b9eb3fc1b8af8089ca7a7c2e669f",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender, err := ParsePrivateKey(tt.sender)
			require.NoError(t, err)
			recipient, err := ParsePublicKey(tt.recipient)
			require.NoError(t, err)

			child, err := DerivePublicKey(sender, recipient, tt.invoice)
			require.NoError(t, err)
			assert.Equal(t, tt.want, IdentityKey(child))
		})
	}
}

func TestDerivationDependsOnInvoiceAndCounterparty(t *testing.T) {
	sender := newKey(t)
	other := newKey(t)
	recipient := newKey(t)

	a, err := DerivePrivateKey(recipient, sender.PubKey(), ProtocolPrefix+"a b")
	require.NoError(t, err)
	b, err := DerivePrivateKey(recipient, sender.PubKey(), ProtocolPrefix+"a c")
	require.NoError(t, err)
	c, err := DerivePrivateKey(recipient, other.PubKey(), ProtocolPrefix+"a b")
	require.NoError(t, err)

	assert.False(t, a.PubKey().IsEqual(b.PubKey()))
	assert.False(t, a.PubKey().IsEqual(c.PubKey()))
}

func TestLockingScriptShape(t *testing.T) {
	script, err := LockingScript(newKey(t).PubKey())
	require.NoError(t, err)

	require.Len(t, script, 25)
	assert.Equal(t, "76a914", hex.EncodeToString(script[:3]))
	assert.Equal(t, "88ac", hex.EncodeToString(script[23:]))
}

func TestLockingScript_KnownKey(t *testing.T) {
	// Private key 1: its compressed pubkey hash160 is well known.
	priv, err := ParsePrivateKey(strings.Repeat("00", 31) + "01")
	require.NoError(t, err)

	script, err := LockingScript(priv.PubKey())
	require.NoError(t, err)
	assert.Equal(t, "76a914751e76e8199196d454941c45d1b3a323f1433bd688ac", hex.EncodeToString(script))
}

func TestExpectedScriptMatchesSenderView(t *testing.T) {
	sender := newKey(t)
	recipient := newKey(t)

	want, err := ExpectedScript(recipient, sender.PubKey(), "p", "s")
	require.NoError(t, err)

	pub, err := DerivePublicKey(sender, recipient.PubKey(), ProtocolPrefix+"p s")
	require.NoError(t, err)
	got, err := LockingScript(pub)
	require.NoError(t, err)

	assert.True(t, bytes.Equal(want, got))
}

func TestParseKeys(t *testing.T) {
	k := newKey(t)
	hexPub := IdentityKey(k.PubKey())

	pub, err := ParsePublicKey(strings.ToUpper(hexPub))
	require.NoError(t, err)
	assert.Equal(t, hexPub, IdentityKey(pub))

	_, err = ParsePublicKey("02abcd")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = ParsePublicKey("not hex")
	assert.ErrorIs(t, err, ErrInvalidKey)

	priv, err := ParsePrivateKey(hex.EncodeToString(k.Serialize()))
	require.NoError(t, err)
	assert.True(t, priv.PubKey().IsEqual(k.PubKey()))

	_, err = ParsePrivateKey(strings.Repeat("00", 32))
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = ParsePrivateKey("0102")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestAddressAndNetworks(t *testing.T) {
	k := newKey(t)
	for _, name := range []string{"", "mainnet", "testnet", "regtest"} {
		params, err := NetworkParams(name)
		require.NoError(t, err, name)
		addr, err := Address(k.PubKey(), params)
		require.NoError(t, err)
		assert.NotEmpty(t, addr)
	}

	_, err := NetworkParams("moonnet")
	assert.Error(t, err)
}
