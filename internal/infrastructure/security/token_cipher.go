// Package security provides at-rest encryption for marketplace credentials.
package security

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required key length in bytes
const KeySize = chacha20poly1305.KeySize

var (
	ErrInvalidKey         = errors.New("security: token encryption key must decode to 32 bytes")
	ErrCiphertextTooShort = errors.New("security: ciphertext too short")
)

// TokenCipher seals tokens with XChaCha20-Poly1305.
// Output is base64url(nonce|ciphertext) without padding.
type TokenCipher struct {
	key []byte
}

// ParseKey decodes a 32-byte key given as hex or standard base64
func ParseKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if k, err := hex.DecodeString(encoded); err == nil && len(k) == KeySize {
		return k, nil
	}
	if k, err := base64.StdEncoding.DecodeString(encoded); err == nil && len(k) == KeySize {
		return k, nil
	}
	if k, err := base64.RawURLEncoding.DecodeString(encoded); err == nil && len(k) == KeySize {
		return k, nil
	}
	return nil, ErrInvalidKey
}

// NewTokenCipher creates a cipher from an encoded key
func NewTokenCipher(encodedKey string) (*TokenCipher, error) {
	key, err := ParseKey(encodedKey)
	if err != nil {
		return nil, err
	}
	return &TokenCipher{key: key}, nil
}

// Encrypt seals plaintext under a fresh random nonce
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("security: generate nonce: %w", err)
	}

	out := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Decrypt opens a value produced by Encrypt
func (c *TokenCipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("security: decode ciphertext: %w", err)
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}

	ns := aead.NonceSize()
	if len(raw) < ns+aead.Overhead() {
		return "", ErrCiphertextTooShort
	}

	pt, err := aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("security: open ciphertext: %w", err)
	}
	return string(pt), nil
}
