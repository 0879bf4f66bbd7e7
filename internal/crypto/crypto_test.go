package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = bytes.Repeat([]byte{0x42}, 32)

func TestSINCipher_RoundTrip(t *testing.T) {
	c, err := NewSINCipher(testKey)
	require.NoError(t, err)

	ciphertext, nonce, err := c.Encrypt("123-456-789")
	require.NoError(t, err)
	assert.NotContains(t, string(ciphertext), "123-456-789")

	plaintext, err := c.Decrypt(ciphertext, nonce)
	require.NoError(t, err)
	assert.Equal(t, "123-456-789", plaintext)
}

func TestSINCipher_FreshNoncePerEncryption(t *testing.T) {
	c, err := NewSINCipher(testKey)
	require.NoError(t, err)

	_, n1, err := c.Encrypt("123456789")
	require.NoError(t, err)
	_, n2, err := c.Encrypt("123456789")
	require.NoError(t, err)
	assert.NotEqual(t, n1, n2)
}

func TestSINCipher_WrongKeyFails(t *testing.T) {
	c1, err := NewSINCipher(testKey)
	require.NoError(t, err)
	c2, err := NewSINCipher(bytes.Repeat([]byte{0x07}, 32))
	require.NoError(t, err)

	ciphertext, nonce, err := c1.Encrypt("123456789")
	require.NoError(t, err)
	_, err = c2.Decrypt(ciphertext, nonce)
	assert.Error(t, err)
}

func TestNewSINCipher_KeySize(t *testing.T) {
	_, err := NewSINCipher([]byte("short"))
	assert.ErrorIs(t, err, ErrKeySize)

	_, err = NewSINCipherFromHex("zz")
	assert.Error(t, err)

	_, err = NewSINCipherFromHex("4242424242424242424242424242424242424242424242424242424242424242")
	assert.NoError(t, err)
}

func TestMaskSIN(t *testing.T) {
	assert.Equal(t, "***-***-789", MaskSIN("123-456-789"))
	assert.Equal(t, "***-***-789", MaskSIN("123456789"))
	assert.Equal(t, "***-***-***", MaskSIN("12"))
}
