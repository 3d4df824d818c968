package store

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCipher_RoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	raw, err := KeyFromBase64(key)
	require.NoError(t, err)

	c, err := newTokenCipher(raw)
	require.NoError(t, err)
	require.True(t, c.enabled())

	for _, plaintext := range []string{"ya29.access", "token_🔐", ""} {
		sealed, err := c.seal(plaintext)
		require.NoError(t, err)
		if plaintext == "" {
			assert.Empty(t, sealed)
			continue
		}
		assert.NotEqual(t, plaintext, sealed)

		again, err := c.seal(plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, sealed, again, "nonces are random")

		opened, err := c.open(sealed)
		require.NoError(t, err)
		assert.Equal(t, plaintext, opened)
	}
}

func TestTokenCipher_Disabled(t *testing.T) {
	c, err := newTokenCipher(nil)
	require.NoError(t, err)
	assert.False(t, c.enabled())

	sealed, err := c.seal("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", sealed)
}

func TestTokenCipher_Tampered(t *testing.T) {
	raw := make([]byte, KeySize)
	c, err := newTokenCipher(raw)
	require.NoError(t, err)

	sealed, err := c.seal("secret")
	require.NoError(t, err)
	b, _ := base64.StdEncoding.DecodeString(sealed)
	b[len(b)-1] ^= 0xff

	_, err = c.open(base64.StdEncoding.EncodeToString(b))
	assert.ErrorContains(t, err, "failed to decrypt")

	_, err = c.open("not base64!")
	assert.ErrorContains(t, err, "failed to decode base64")

	_, err = c.open(base64.StdEncoding.EncodeToString([]byte("x")))
	assert.ErrorContains(t, err, "ciphertext too short")
}

func TestKeyFromBase64(t *testing.T) {
	key, err := KeyFromBase64("")
	require.NoError(t, err)
	assert.Nil(t, key)

	_, err = KeyFromBase64("%%%")
	assert.ErrorContains(t, err, "invalid base64 key")

	_, err = KeyFromBase64(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorContains(t, err, "must be 32 bytes")
}
