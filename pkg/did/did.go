// Package did provides did:key identifiers for Ed25519 issuer keys.
// A did:key is a stable, self-certifying name for a public key and is used to
// key trust store entries and issuer key files.
package did

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// Common errors returned by this package.
var (
	ErrInvalidKeyDID      = errors.New("invalid did:key")
	ErrUnsupportedKeyType = errors.New("unsupported key type in did:key (only Ed25519 supported)")
)

// Ed25519PublicKeySize is the size of an Ed25519 public key in bytes.
const Ed25519PublicKeySize = ed25519.PublicKeySize

// keyPrefix is the method prefix plus the base58btc multibase tag.
const keyPrefix = "did:key:z"

// ed25519Multicodec is the varint encoding of multicodec 0xed01.
var ed25519Multicodec = []byte{0xed, 0x01}

// NewKeyDID encodes an Ed25519 public key as did:key:z<base58btc(0xed01 || key)>.
// Returns an empty string if publicKey is not 32 bytes.
func NewKeyDID(publicKey []byte) string {
	if len(publicKey) != Ed25519PublicKeySize {
		return ""
	}
	buf := make([]byte, 0, len(ed25519Multicodec)+len(publicKey))
	buf = append(buf, ed25519Multicodec...)
	buf = append(buf, publicKey...)
	return keyPrefix + base58.Encode(buf)
}

// PublicKeyFromKeyDID decodes the Ed25519 public key named by id.
func PublicKeyFromKeyDID(id string) (ed25519.PublicKey, error) {
	encoded, ok := strings.CutPrefix(id, keyPrefix)
	if !ok || encoded == "" {
		return nil, fmt.Errorf("%w: %q must start with %s", ErrInvalidKeyDID, id, keyPrefix)
	}

	decoded, err := base58.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base58btc encoding: %v", ErrInvalidKeyDID, err)
	}
	if !bytes.HasPrefix(decoded, ed25519Multicodec) {
		return nil, ErrUnsupportedKeyType
	}

	key := decoded[len(ed25519Multicodec):]
	if len(key) != Ed25519PublicKeySize {
		return nil, fmt.Errorf("%w: key is %d bytes, want %d", ErrInvalidKeyDID, len(key), Ed25519PublicKeySize)
	}
	return ed25519.PublicKey(key), nil
}
