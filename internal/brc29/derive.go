// ABOUTME: BRC-42 child key derivation and BRC-29 invoice numbers
// ABOUTME: Wraps go-sdk child derivation and P2PKH templates around wallet keys

package brc29

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction/template/p2pkh"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// ProtocolPrefix is the security level and protocol ID of BRC-29 payments.
const ProtocolPrefix = "2-3241645161d8-"

// PartSize is the number of random bytes behind each derivation part.
const PartSize = 16

var (
	ErrInvalidKey = errors.New("invalid key")
	ErrZeroScalar = errors.New("derived scalar is zero")
	ErrEmptyPart  = errors.New("derivation part is empty")
	ErrPointAtInf = errors.New("derived point at infinity")
)

// InvoiceNumber joins the derivation prefix and suffix into the BRC-43
// invoice number both parties feed into key derivation.
func InvoiceNumber(prefix, suffix string) (string, error) {
	if prefix == "" || suffix == "" {
		return "", ErrEmptyPart
	}
	return ProtocolPrefix + prefix + " " + suffix, nil
}

// NewDerivationPart returns base64 of PartSize bytes from crypto/rand.
func NewDerivationPart() (string, error) {
	buf := make([]byte, PartSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// ParsePublicKey decodes a hex compressed (or uncompressed) secp256k1 point.
func ParsePublicKey(s string) (*btcec.PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	pub, err := btcec.ParsePubKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return pub, nil
}

// ParsePrivateKey decodes a 32-byte hex scalar.
func ParsePrivateKey(s string) (*btcec.PrivateKey, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(raw) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKey, btcec.PrivKeyBytesLen, len(raw))
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	if priv.Key.IsZero() {
		return nil, fmt.Errorf("%w: zero scalar", ErrInvalidKey)
	}
	return priv, nil
}

// IdentityKey returns the lower-case hex compressed encoding of pub.
func IdentityKey(pub *btcec.PublicKey) string {
	return hex.EncodeToString(pub.SerializeCompressed())
}

// sdkPrivate converts a wallet key to the go-sdk representation.
func sdkPrivate(k *btcec.PrivateKey) *ec.PrivateKey {
	priv, _ := ec.PrivateKeyFromBytes(k.Serialize())
	return priv
}

func sdkPublic(k *btcec.PublicKey) (*ec.PublicKey, error) {
	pub, err := ec.ParsePubKey(k.SerializeCompressed())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return pub, nil
}

// DerivePrivateKey is the recipient side of BRC-42: the child private key of
// root for the given counterparty and invoice number.
func DerivePrivateKey(root *btcec.PrivateKey, counterparty *btcec.PublicKey, invoice string) (*btcec.PrivateKey, error) {
	pub, err := sdkPublic(counterparty)
	if err != nil {
		return nil, err
	}
	child, err := sdkPrivate(root).DeriveChild(pub, invoice)
	if err != nil {
		return nil, fmt.Errorf("deriving child private key: %w", err)
	}
	priv, _ := btcec.PrivKeyFromBytes(child.Serialize())
	if priv.Key.IsZero() {
		return nil, ErrZeroScalar
	}
	return priv, nil
}

// DerivePublicKey is the sender side of BRC-42: the child public key of
// recipient, computed with the sender's own private key.
func DerivePublicKey(sender *btcec.PrivateKey, recipient *btcec.PublicKey, invoice string) (*btcec.PublicKey, error) {
	pub, err := sdkPublic(recipient)
	if err != nil {
		return nil, err
	}
	child, err := pub.DeriveChild(sdkPrivate(sender), invoice)
	if err != nil {
		return nil, fmt.Errorf("deriving child public key: %w", err)
	}
	out, err := btcec.ParsePubKey(child.Compressed())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPointAtInf, err)
	}
	return out, nil
}

// LockingScript returns the P2PKH script paying to the compressed pub.
func LockingScript(pub *btcec.PublicKey) ([]byte, error) {
	sdkPub, err := sdkPublic(pub)
	if err != nil {
		return nil, err
	}
	addr, err := script.NewAddressFromPublicKey(sdkPub, true)
	if err != nil {
		return nil, fmt.Errorf("building address: %w", err)
	}
	lock, err := p2pkh.Lock(addr)
	if err != nil {
		return nil, fmt.Errorf("building locking script: %w", err)
	}
	return []byte(*lock), nil
}

// Address renders the P2PKH address of pub for the given network.
func Address(pub *btcec.PublicKey, params *chaincfg.Params) (string, error) {
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), params)
	if err != nil {
		return "", fmt.Errorf("building address: %w", err)
	}
	return addr.EncodeAddress(), nil
}

// NetworkParams resolves a network name to chain parameters.
func NetworkParams(name string) (*chaincfg.Params, error) {
	switch strings.ToLower(name) {
	case "", "main", "mainnet":
		return &chaincfg.MainNetParams, nil
	case "test", "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", name)
	}
}

// ExpectedScript derives the child key for a BRC-29 payment from the
// recipient's root key and returns the script the payment must carry.
func ExpectedScript(root *btcec.PrivateKey, sender *btcec.PublicKey, prefix, suffix string) ([]byte, error) {
	invoice, err := InvoiceNumber(prefix, suffix)
	if err != nil {
		return nil, err
	}
	child, err := DerivePrivateKey(root, sender, invoice)
	if err != nil {
		return nil, fmt.Errorf("deriving child key: %w", err)
	}
	return LockingScript(child.PubKey())
}
