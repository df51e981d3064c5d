package connections

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCiphertext is returned for values not in nonce:ciphertext form.
var ErrInvalidCiphertext = errors.New("invalid encrypted password format")

// Cipher encrypts passwords with AES-256-GCM keyed by SHA-256 of a
// passphrase. Encrypted values are stored as base64(nonce):base64(sealed).
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the key from passphrase.
func NewCipher(passphrase string) (*Cipher, error) {
	if passphrase == "" {
		return nil, errors.New("encryption passphrase is required")
	}
	key := sha256.Sum256([]byte(passphrase))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("creating block cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(nonce) + ":" + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *Cipher) Decrypt(value string) (string, error) {
	noncePart, dataPart, ok := strings.Cut(value, ":")
	if !ok || noncePart == "" || dataPart == "" || strings.Contains(dataPart, ":") {
		return "", ErrInvalidCiphertext
	}
	nonce, err := base64.StdEncoding.DecodeString(noncePart)
	if err != nil || len(nonce) != c.aead.NonceSize() {
		return "", ErrInvalidCiphertext
	}
	data, err := base64.StdEncoding.DecodeString(dataPart)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	plain, err := c.aead.Open(nil, nonce, data, nil)
	if err != nil {
		return "", fmt.Errorf("opening ciphertext: %w", err)
	}
	return string(plain), nil
}
