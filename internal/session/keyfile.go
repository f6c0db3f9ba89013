// ABOUTME: Persists the wallet root key as a JSON key file, optionally sealed
// ABOUTME: Sealing uses scrypt-derived AES-256-GCM with the identity key as AAD

package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/scrypt"

	"github.com/2389/fundgate/internal/brc29"
	"github.com/2389/fundgate/internal/fileutil"
)

const (
	// DefaultScryptN is the scrypt cost used for new sealed key files.
	DefaultScryptN = 1 << 18
	scryptR        = 8
	scryptP        = 1
	sealKeyLen     = 32
	saltLen        = 32
)

var (
	// ErrNoKey means no key file exists.
	ErrNoKey = errors.New("no saved key")
	// ErrKeyFileInvalid means a key file exists but cannot be used.
	ErrKeyFileInvalid = errors.New("key file invalid")
)

// KeyStore persists the wallet root key.
type KeyStore interface {
	// Load returns the saved key, or ErrNoKey.
	Load() (*btcec.PrivateKey, error)
	// IdentityKey returns the saved identity key without unsealing.
	IdentityKey() (string, error)
	Save(priv *btcec.PrivateKey) error
	// Delete removes the saved key; a missing file is not an error.
	Delete() error
}

type sealedKey struct {
	KDF        string `json:"kdf"`
	N          int    `json:"n"`
	R          int    `json:"r"`
	P          int    `json:"p"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	CipherText string `json:"cipherText"`
}

type keyRecord struct {
	PrivateKey  string     `json:"privateKey,omitempty"`
	IdentityKey string     `json:"identityKey"`
	Encrypted   *sealedKey `json:"encrypted,omitempty"`
}

// KeyFile stores the key as JSON at a fixed path. With a passphrase the
// private key is sealed; the identity key stays readable either way.
type KeyFile struct {
	path       string
	passphrase []byte
	scryptN    int
}

// NewKeyFile returns a key file at path. An empty passphrase stores the key
// in plain hex.
func NewKeyFile(path, passphrase string) *KeyFile {
	kf := &KeyFile{path: path, scryptN: DefaultScryptN}
	if passphrase != "" {
		kf.passphrase = []byte(passphrase)
	}
	return kf
}

// Path returns the key file location.
func (k *KeyFile) Path() string { return k.path }

func (k *KeyFile) read() (*keyRecord, error) {
	data, err := os.ReadFile(k.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoKey
	}
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	var rec keyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFileInvalid, err)
	}
	if rec.IdentityKey == "" {
		return nil, fmt.Errorf("%w: missing identityKey", ErrKeyFileInvalid)
	}
	return &rec, nil
}

func (k *KeyFile) IdentityKey() (string, error) {
	rec, err := k.read()
	if err != nil {
		return "", err
	}
	return rec.IdentityKey, nil
}

func (k *KeyFile) Load() (*btcec.PrivateKey, error) {
	rec, err := k.read()
	if err != nil {
		return nil, err
	}

	keyHex := rec.PrivateKey
	if rec.Encrypted != nil {
		if k.passphrase == nil {
			return nil, fmt.Errorf("%w: key is sealed and no passphrase is configured", ErrKeyFileInvalid)
		}
		plain, err := unseal(rec.Encrypted, k.passphrase, []byte(rec.IdentityKey))
		if err != nil {
			return nil, err
		}
		keyHex = string(plain)
	}

	priv, err := brc29.ParsePrivateKey(keyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFileInvalid, err)
	}
	if brc29.IdentityKey(priv.PubKey()) != rec.IdentityKey {
		return nil, fmt.Errorf("%w: identityKey does not match privateKey", ErrKeyFileInvalid)
	}
	return priv, nil
}

func (k *KeyFile) Save(priv *btcec.PrivateKey) error {
	identity := brc29.IdentityKey(priv.PubKey())
	keyHex := hex.EncodeToString(priv.Serialize())

	rec := keyRecord{IdentityKey: identity}
	if k.passphrase != nil {
		sealed, err := seal([]byte(keyHex), k.passphrase, []byte(identity), k.scryptN)
		if err != nil {
			return err
		}
		rec.Encrypted = sealed
	} else {
		rec.PrivateKey = keyHex
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding key file: %w", err)
	}
	if err := fileutil.WriteAtomic(k.path, data, 0600, 0700); err != nil {
		return fmt.Errorf("writing key file: %w", err)
	}
	return nil
}

func (k *KeyFile) Delete() error {
	if err := os.Remove(k.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing key file: %w", err)
	}
	return nil
}

func seal(plain, passphrase, aad []byte, n int) (*sealedKey, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	gcm, err := newGCM(passphrase, salt, n, scryptR, scryptP)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return &sealedKey{
		KDF:        "scrypt",
		N:          n,
		R:          scryptR,
		P:          scryptP,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		CipherText: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, plain, aad)),
	}, nil
}

func unseal(s *sealedKey, passphrase, aad []byte) ([]byte, error) {
	if s.KDF != "scrypt" {
		return nil, fmt.Errorf("%w: unsupported kdf %q", ErrKeyFileInvalid, s.KDF)
	}
	salt, err := base64.StdEncoding.DecodeString(s.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: salt: %v", ErrKeyFileInvalid, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(s.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrKeyFileInvalid, err)
	}
	ct, err := base64.StdEncoding.DecodeString(s.CipherText)
	if err != nil {
		return nil, fmt.Errorf("%w: cipherText: %v", ErrKeyFileInvalid, err)
	}

	gcm, err := newGCM(passphrase, salt, s.N, s.R, s.P)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFileInvalid, err)
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce length", ErrKeyFileInvalid)
	}
	plain, err := gcm.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: wrong passphrase or tampered file", ErrKeyFileInvalid)
	}
	return plain, nil
}

func newGCM(passphrase, salt []byte, n, r, p int) (cipher.AEAD, error) {
	key, err := scrypt.Key(passphrase, salt, n, r, p, sealKeyLen)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}
