package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrKeySize is returned when the configured key is not an AES-256 key.
var ErrKeySize = errors.New("sin key must be 32 bytes")

// SINCipher encrypts social insurance numbers at rest with AES-GCM.
type SINCipher struct {
	aead cipher.AEAD
}

// NewSINCipher builds a cipher from a 32-byte key.
func NewSINCipher(key []byte) (*SINCipher, error) {
	if len(key) != 32 {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &SINCipher{aead: aead}, nil
}

// NewSINCipherFromHex builds a cipher from a hex-encoded key as found in config.
func NewSINCipherFromHex(hexKey string) (*SINCipher, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("decode sin key: %w", err)
	}
	return NewSINCipher(key)
}

// Encrypt encrypts data using AES-GCM and returns the ciphertext and nonce
func (c *SINCipher) Encrypt(plaintext string) ([]byte, []byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, err
	}

	ciphertext := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return ciphertext, nonce, nil
}

// Decrypt decrypts AES-GCM encrypted data
func (c *SINCipher) Decrypt(ciphertext, nonce []byte) (string, error) {
	if len(nonce) != c.aead.NonceSize() {
		return "", errors.New("invalid nonce size")
	}
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

// MaskSIN hides all but the last three digits, e.g. "***-***-789".
func MaskSIN(sin string) string {
	var digits []rune
	for _, r := range sin {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) < 3 {
		return "***-***-***"
	}
	return "***-***-" + string(digits[len(digits)-3:])
}
