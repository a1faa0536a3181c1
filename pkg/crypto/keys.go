// Package crypto wraps the Ed25519 signature primitive used to sign and verify
// microcredentials. It converts between key material and the raw signature bytes
// stored on a credential and reports malformed input separately from a failed
// verification.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

const (
	// PublicKeySize is the length of an Ed25519 public key in bytes.
	PublicKeySize = ed25519.PublicKeySize

	// SignatureSize is the length of an Ed25519 signature in bytes.
	SignatureSize = ed25519.SignatureSize

	// SeedSize is the length of an Ed25519 private key seed in bytes.
	SeedSize = ed25519.SeedSize
)

// Common errors returned by this package.
var (
	ErrMalformedKey          = errors.New("malformed key")
	ErrMalformedSignature    = errors.New("malformed signature")
	ErrRandomnessUnavailable = errors.New("secure randomness unavailable")
)

// PublicKey is a raw Ed25519 public key.
type PublicKey []byte

// noCopy triggers go vet's copylocks check when a PrivateKey is copied by value.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// PrivateKey is an Ed25519 signing key. It is always handled by pointer and
// never prints or marshals its key material.
type PrivateKey struct {
	_   noCopy
	key ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh Ed25519 key pair from r.
// A nil reader means crypto/rand.Reader.
func GenerateKeyPair(r io.Reader) (*PrivateKey, PublicKey, error) {
	if r == nil {
		r = rand.Reader
	}

	pub, priv, err := ed25519.GenerateKey(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrRandomnessUnavailable, err)
	}

	return &PrivateKey{key: priv}, PublicKey(pub), nil
}

// PrivateKeyFromSeed rebuilds a private key from its 32-byte seed.
func PrivateKeyFromSeed(seed []byte) (*PrivateKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes, got %d", ErrMalformedKey, SeedSize, len(seed))
	}
	return &PrivateKey{key: ed25519.NewKeyFromSeed(seed)}, nil
}

// Public returns a copy of the public half of the key pair.
func (k *PrivateKey) Public() PublicKey {
	if k == nil || len(k.key) != ed25519.PrivateKeySize {
		return nil
	}
	pub := make([]byte, PublicKeySize)
	copy(pub, k.key[SeedSize:])
	return pub
}

// String redacts the key material.
func (k *PrivateKey) String() string {
	return "crypto.PrivateKey{REDACTED}"
}

// GoString redacts the key material from %#v.
func (k *PrivateKey) GoString() string {
	return k.String()
}

// MarshalJSON refuses to serialize a private key. Use MarshalPrivateJWK to
// write key files explicitly.
func (k *PrivateKey) MarshalJSON() ([]byte, error) {
	return nil, errors.New("crypto: private key is not serializable")
}

// Sign signs message with priv.
func Sign(priv *PrivateKey, message []byte) ([]byte, error) {
	if priv == nil || len(priv.key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: private key is not initialized", ErrMalformedKey)
	}
	return ed25519.Sign(priv.key, message), nil
}

// Verify reports whether signature is a valid signature of message by pub.
// A key or signature of the wrong length is reported as an error, not as a
// failed verification.
func Verify(pub []byte, message, signature []byte) (bool, error) {
	if len(pub) != PublicKeySize {
		return false, fmt.Errorf("%w: public key must be %d bytes, got %d", ErrMalformedKey, PublicKeySize, len(pub))
	}
	if len(signature) != SignatureSize {
		return false, fmt.Errorf("%w: signature must be %d bytes, got %d", ErrMalformedSignature, SignatureSize, len(signature))
	}
	return ed25519.Verify(ed25519.PublicKey(pub), message, signature), nil
}
