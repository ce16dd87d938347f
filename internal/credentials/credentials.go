// Package credentials encrypts and decrypts the per-user content API tokens
// stored in the database.
//
// Tokens are sealed with AES-256-GCM under a key derived from the configured
// encryption secret with HKDF-SHA256. The stored form is
// base64(nonce || ciphertext || tag).
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	hkdfSalt   = "readlist-sync-content-api-credentials"
	hkdfInfo   = "content-api-token-v1"
	aesKeySize = 32
)

var (
	// ErrEmptySecret is returned when no encryption secret is configured.
	ErrEmptySecret = errors.New("encryption secret cannot be empty")

	// ErrEmptyPlaintext is returned when encrypting an empty token.
	ErrEmptyPlaintext = errors.New("plaintext cannot be empty")

	// ErrInvalidCiphertext is returned for values that are not valid
	// base64 or are too short to hold a nonce and tag.
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")

	// ErrDecryptionFailed is returned when authentication fails, either
	// because the value was tampered with or the key is wrong.
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Decryptor turns a stored credential into the plaintext API token.
type Decryptor interface {
	Decrypt(ciphertext string) (string, error)
}

// Cipher is the AES-GCM implementation of Decryptor. It also encrypts, for
// the enable command and tests.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the AES key from secret and prepares the AEAD.
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key := make([]byte, aesKeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), []byte(hkdfSalt), []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random nonce.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt implements Decryptor
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize+1+c.aead.Overhead() {
		return "", fmt.Errorf("%w: too short", ErrInvalidCiphertext)
	}

	plaintext, err := c.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}
