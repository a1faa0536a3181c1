package crypto_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/microcred/microcred-core/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy pool exhausted")
}

func TestSignVerify(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair(nil)
	require.NoError(t, err)
	require.Len(t, pub, crypto.PublicKeySize)
	assert.Equal(t, pub, priv.Public())

	msg := []byte("canonical credential bytes")
	sig, err := crypto.Sign(priv, msg)
	require.NoError(t, err)
	require.Len(t, sig, crypto.SignatureSize)

	t.Run("valid", func(t *testing.T) {
		ok, err := crypto.Verify(pub, msg, sig)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("different message", func(t *testing.T) {
		ok, err := crypto.Verify(pub, []byte("canonical credential byteS"), sig)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("different key", func(t *testing.T) {
		_, otherPub, err := crypto.GenerateKeyPair(nil)
		require.NoError(t, err)

		ok, err := crypto.Verify(otherPub, msg, sig)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("malformed key", func(t *testing.T) {
		_, err := crypto.Verify(pub[:31], msg, sig)
		assert.ErrorIs(t, err, crypto.ErrMalformedKey)
	})

	t.Run("malformed signature", func(t *testing.T) {
		_, err := crypto.Verify(pub, msg, sig[:10])
		assert.ErrorIs(t, err, crypto.ErrMalformedSignature)

		_, err = crypto.Verify(pub, msg, nil)
		assert.ErrorIs(t, err, crypto.ErrMalformedSignature)
	})
}

func TestGenerateKeyPairFreshness(t *testing.T) {
	_, pub1, err := crypto.GenerateKeyPair(nil)
	require.NoError(t, err)
	_, pub2, err := crypto.GenerateKeyPair(nil)
	require.NoError(t, err)

	assert.False(t, bytes.Equal(pub1, pub2))
}

func TestGenerateKeyPairRandomnessFailure(t *testing.T) {
	_, _, err := crypto.GenerateKeyPair(failingReader{})
	assert.ErrorIs(t, err, crypto.ErrRandomnessUnavailable)
}

func TestPrivateKeyFromSeed(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, crypto.SeedSize)

	k1, err := crypto.PrivateKeyFromSeed(seed)
	require.NoError(t, err)
	k2, err := crypto.PrivateKeyFromSeed(seed)
	require.NoError(t, err)
	assert.Equal(t, k1.Public(), k2.Public())

	_, err = crypto.PrivateKeyFromSeed(seed[:16])
	assert.ErrorIs(t, err, crypto.ErrMalformedKey)
}

func TestPrivateKeyRedaction(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair(nil)
	require.NoError(t, err)

	assert.Equal(t, "crypto.PrivateKey{REDACTED}", fmt.Sprintf("%v", priv))
	assert.Equal(t, "crypto.PrivateKey{REDACTED}", fmt.Sprintf("%#v", priv))

	_, err = json.Marshal(priv)
	assert.Error(t, err)
}

func TestSignUninitializedKey(t *testing.T) {
	_, err := crypto.Sign(nil, []byte("x"))
	assert.ErrorIs(t, err, crypto.ErrMalformedKey)

	_, err = crypto.Sign(&crypto.PrivateKey{}, []byte("x"))
	assert.ErrorIs(t, err, crypto.ErrMalformedKey)
}
