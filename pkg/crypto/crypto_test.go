package crypto

import (
	"encoding/hex"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

func TestNewEncryptor_KeyValidation(t *testing.T) {
	_, err := NewEncryptor("not-hex")
	assert.Error(t, err)

	_, err = NewEncryptor("abcd")
	assert.Error(t, err)

	enc, err := NewEncryptor(testKey)
	require.NoError(t, err)
	assert.NotNil(t, enc)
}

func TestEncryptor_RoundTrip(t *testing.T) {
	enc, err := NewEncryptor(testKey)
	require.NoError(t, err)

	inputs := []string{
		"",
		"a",
		"JBSWY3DPEHPK3PXP",
		"a fairly long secret value with spaces and unicode: héllo wörld",
		string(make([]byte, 4096)),
	}

	for _, in := range inputs {
		sealed, err := enc.Encrypt(in)
		require.NoError(t, err)

		out, err := enc.Decrypt(sealed)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestEncryptor_NonceUniqueness(t *testing.T) {
	enc, err := NewEncryptor(testKey)
	require.NoError(t, err)

	a, err := enc.Encrypt("same plaintext")
	require.NoError(t, err)
	b, err := enc.Encrypt("same plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, a.Nonce, b.Nonce)
	assert.NotEqual(t, a.Cipher, b.Cipher)
}

func TestEncryptor_TamperedCiphertext(t *testing.T) {
	enc, err := NewEncryptor(testKey)
	require.NoError(t, err)

	sealed, err := enc.Encrypt("secret")
	require.NoError(t, err)

	raw, err := hex.DecodeString(sealed.Cipher)
	require.NoError(t, err)
	raw[0] ^= 0xff
	sealed.Cipher = hex.EncodeToString(raw)

	_, err = enc.Decrypt(sealed)
	assert.Error(t, err)
}

func TestGenerateToken(t *testing.T) {
	plain, hash, err := GenerateToken()
	require.NoError(t, err)

	// 32 random bytes hex encoded, so the token always passes the
	// compiler's alphanumeric check.
	assert.Len(t, plain, 64)
	assert.Regexp(t, regexp.MustCompile(`^[a-z0-9A-Z]*$`), plain)
	assert.Equal(t, Hash(plain), hash)
	assert.NotEqual(t, plain, hash)
}

func TestGenerateString(t *testing.T) {
	s, err := GenerateString(25)
	require.NoError(t, err)
	assert.Len(t, s, 25)
	assert.Regexp(t, regexp.MustCompile(`^[a-z0-9A-Z]*$`), s)

	other, err := GenerateString(25)
	require.NoError(t, err)
	assert.NotEqual(t, s, other)
}
