package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// tokenCipher seals OAuth tokens at rest with AES-256-GCM.
// A cipher without a key stores values as-is.
//
// Sealed values are base64(nonce || ciphertext || tag) with a fresh random
// nonce for every call.
type tokenCipher struct {
	gcm cipher.AEAD
}

func newTokenCipher(key []byte) (*tokenCipher, error) {
	if len(key) == 0 {
		return &tokenCipher{}, nil
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be exactly %d bytes, got %d bytes", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &tokenCipher{gcm: gcm}, nil
}

func (c *tokenCipher) enabled() bool {
	return c != nil && c.gcm != nil
}

func (c *tokenCipher) seal(plaintext string) (string, error) {
	if !c.enabled() || plaintext == "" {
		return plaintext, nil
	}

	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *tokenCipher) open(encoded string) (string, error) {
	if !c.enabled() || encoded == "" {
		return encoded, nil
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	nonceSize := c.gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}
	plaintext, err := c.gcm.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

// GenerateKey returns a random AES-256 key encoded as base64, suitable for
// INBOX_ENCRYPTION_KEY. The key must be kept; tokens sealed with a lost key
// cannot be read back.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate encryption key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// KeyFromBase64 decodes a base64 key. An empty string disables encryption.
func KeyFromBase64(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d bytes", KeySize, len(key))
	}
	return key, nil
}
