package crypto

import (
	"crypto"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/go-jose/go-jose/v4"
)

// MarshalPrivateJWK encodes priv as an EdDSA JSON Web Key with the given key id.
// The output contains secret material and must be stored with restricted permissions.
func MarshalPrivateJWK(priv *PrivateKey, kid string) ([]byte, error) {
	if priv == nil || len(priv.key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: private key is not initialized", ErrMalformedKey)
	}

	jwk := jose.JSONWebKey{
		Key:       priv.key,
		KeyID:     kid,
		Algorithm: string(jose.EdDSA),
		Use:       "sig",
	}
	return json.MarshalIndent(jwk, "", "  ")
}

// ParsePrivateJWK decodes an Ed25519 private key from a JSON Web Key.
func ParsePrivateJWK(data []byte) (*PrivateKey, error) {
	var jwk jose.JSONWebKey
	if err := json.Unmarshal(data, &jwk); err != nil {
		return nil, fmt.Errorf("%w: failed to parse private JWK: %v", ErrMalformedKey, err)
	}

	priv, ok := jwk.Key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: JWK is not an Ed25519 private key", ErrMalformedKey)
	}
	return &PrivateKey{key: priv}, nil
}

// PublicJWK wraps pub in a JSON Web Key for distribution.
func PublicJWK(pub []byte, kid string) (jose.JSONWebKey, error) {
	if len(pub) != PublicKeySize {
		return jose.JSONWebKey{}, fmt.Errorf("%w: public key must be %d bytes, got %d", ErrMalformedKey, PublicKeySize, len(pub))
	}
	return jose.JSONWebKey{
		Key:       ed25519.PublicKey(append([]byte(nil), pub...)),
		KeyID:     kid,
		Algorithm: string(jose.EdDSA),
		Use:       "sig",
	}, nil
}

// PublicKeyFromJWK extracts the raw Ed25519 public key from a JSON Web Key.
func PublicKeyFromJWK(jwk jose.JSONWebKey) (PublicKey, error) {
	switch key := jwk.Key.(type) {
	case ed25519.PublicKey:
		return PublicKey(append([]byte(nil), key...)), nil
	case ed25519.PrivateKey:
		return nil, fmt.Errorf("%w: expected a public key, got private key material", ErrMalformedKey)
	default:
		return nil, fmt.Errorf("%w: JWK is not an Ed25519 public key", ErrMalformedKey)
	}
}

// Thumbprint returns the RFC 7638 SHA-256 thumbprint of pub, base64url encoded.
func Thumbprint(pub []byte) (string, error) {
	jwk, err := PublicJWK(pub, "")
	if err != nil {
		return "", err
	}
	sum, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("failed to compute thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(sum), nil
}
