// Package crypto provides encryption for third-party API credentials stored
// in project metadata.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-datahub/pkg/apperrors"
)

// KeySize is the required key length in bytes (AES-256).
const KeySize = 32

var (
	// ErrInvalidKey is returned when the key is not 64 hex characters.
	ErrInvalidKey = errors.New("invalid encryption key: must be 64 hex characters (32 bytes)")
	// ErrDecryptionFailed is returned when decryption fails due to malformed input or wrong key.
	ErrDecryptionFailed = errors.New("decryption failed: invalid ciphertext or wrong key")
)

// CredentialCipher provides AES-256-GCM encryption for credential values.
// Ciphertext is encoded as "<nonceHex>:<cipherHex>".
//
// A nil *CredentialCipher is valid and represents "no key configured":
// every call returns apperrors.ErrEncryptionKeyNotSet.
type CredentialCipher struct {
	gcm cipher.AEAD
}

// NewCredentialCipher creates a cipher from a hex-encoded 32-byte key
// (e.g., from: openssl rand -hex 32).
func NewCredentialCipher(hexKey string) (*CredentialCipher, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil || len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &CredentialCipher{gcm: gcm}, nil
}

// Encrypt encrypts plaintext with a fresh random nonce.
func (c *CredentialCipher) Encrypt(plaintext string) (string, error) {
	if c == nil {
		return "", apperrors.ErrEncryptionKeyNotSet
	}

	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.gcm.Seal(nil, nonce, []byte(plaintext), nil)

	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. The input is split on the first colon.
func (c *CredentialCipher) Decrypt(encrypted string) (string, error) {
	if c == nil {
		return "", apperrors.ErrEncryptionKeyNotSet
	}

	nonceHex, cipherHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("%w: missing separator", ErrDecryptionFailed)
	}

	nonce, err := hex.DecodeString(nonceHex)
	if err != nil || len(nonce) != c.gcm.NonceSize() {
		return "", fmt.Errorf("%w: invalid nonce", ErrDecryptionFailed)
	}

	sealed, err := hex.DecodeString(cipherHex)
	if err != nil || len(sealed) < c.gcm.Overhead() {
		return "", fmt.Errorf("%w: invalid ciphertext", ErrDecryptionFailed)
	}

	plaintext, err := c.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrDecryptionFailed)
	}

	return string(plaintext), nil
}

// Configured reports whether the cipher holds a key.
func (c *CredentialCipher) Configured() bool {
	return c != nil
}
