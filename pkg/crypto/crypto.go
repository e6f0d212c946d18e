// Package crypto provides the symmetric encryption used for secrets at
// rest and the generation and hashing of communication tokens.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"

	"github.com/Daemonophobic/phalerum-api/pkg/models"
)

const tokenBytes = 32

// Encryptor seals and opens small secrets with AES-256-GCM. The key is
// loaded once from configuration and never rotated in process.
type Encryptor struct {
	key []byte
}

// NewEncryptor creates an Encryptor from a hex-encoded 32-byte key.
func NewEncryptor(hexKey string) (*Encryptor, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	return &Encryptor{key: key}, nil
}

// Encrypt seals the plaintext under a fresh random nonce.
func (e *Encryptor) Encrypt(plaintext string) (models.Encrypted, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return models.Encrypted{}, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return models.Encrypted{}, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return models.Encrypted{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return models.Encrypted{
		Cipher: hex.EncodeToString(ciphertext),
		Nonce:  hex.EncodeToString(nonce),
	}, nil
}

// Decrypt opens a previously sealed value.
func (e *Encryptor) Decrypt(enc models.Encrypted) (string, error) {
	ciphertext, err := hex.DecodeString(enc.Cipher)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	nonce, err := hex.DecodeString(enc.Nonce)
	if err != nil {
		return "", fmt.Errorf("failed to decode nonce: %w", err)
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}
	if len(nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("nonce has wrong size")
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

// Hash returns the hex SHA-256 digest of the input. Communication tokens
// are persisted only in this form.
func Hash(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// GenerateToken returns a fresh communication token as (plaintext, hash).
// The plaintext is disclosed exactly once; only the hash is stored.
func GenerateToken() (plain, hash string, err error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", "", fmt.Errorf("failed to generate token: %w", err)
	}
	plain = hex.EncodeToString(buf)
	return plain, Hash(plain), nil
}

// GenerateSecret returns a random hex string suitable for single-use
// initialization tokens.
func GenerateSecret() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateString returns a random alphanumeric string of the given
// length, used for generated agent names and compile artifact names.
func GenerateString(length int) (string, error) {
	out := make([]byte, length)
	max := big.NewInt(int64(len(alphanumeric)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random string: %w", err)
		}
		out[i] = alphanumeric[n.Int64()]
	}
	return string(out), nil
}
