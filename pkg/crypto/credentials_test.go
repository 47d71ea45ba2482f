package crypto

import (
	"errors"
	"strings"
	"testing"

	"github.com/ekaya-inc/ekaya-datahub/pkg/apperrors"
)

// Test key generated with: openssl rand -hex 32
const testKey = "6b1f0c3a9e4d7b2c8a5f1e0d3c6b9a8f7e2d1c0b4a3f6e5d8c7b0a9f2e1d4c3b"

func TestNewCredentialCipher(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "valid 64-char hex key", key: testKey},
		{name: "valid key with surrounding whitespace", key: "  " + testKey + "\n"},
		{name: "empty key", key: "", wantErr: true},
		{name: "short hex key", key: testKey[:32], wantErr: true},
		{name: "long hex key", key: testKey + "00", wantErr: true},
		{name: "not hex", key: strings.Repeat("z", 64), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCredentialCipher(tt.key)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidKey) {
					t.Errorf("expected ErrInvalidKey, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !c.Configured() {
				t.Error("expected configured cipher")
			}
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := NewCredentialCipher(testKey)
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}

	tests := []struct {
		name      string
		plaintext string
	}{
		{name: "api key", plaintext: "sk-live-1234567890abcdef"},
		{name: "empty string", plaintext: ""},
		{name: "unicode", plaintext: "pässwörd-密码-🔑"},
		{name: "contains colon", plaintext: "user:password"},
		{name: "long value", plaintext: strings.Repeat("secret", 500)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encrypted, err := c.Encrypt(tt.plaintext)
			if err != nil {
				t.Fatalf("encrypt failed: %v", err)
			}

			nonceHex, cipherHex, ok := strings.Cut(encrypted, ":")
			if !ok {
				t.Fatalf("expected nonce:cipher format, got %q", encrypted)
			}
			if len(nonceHex) != 24 {
				t.Errorf("expected 12-byte nonce (24 hex chars), got %d chars", len(nonceHex))
			}
			if cipherHex == "" {
				t.Error("expected non-empty ciphertext")
			}

			decrypted, err := c.Decrypt(encrypted)
			if err != nil {
				t.Fatalf("decrypt failed: %v", err)
			}
			if decrypted != tt.plaintext {
				t.Errorf("round trip mismatch: got %q, want %q", decrypted, tt.plaintext)
			}
		})
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	c, err := NewCredentialCipher(testKey)
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}

	first, err := c.Encrypt("same-secret")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	second, err := c.Encrypt("same-secret")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	if first == second {
		t.Error("two encryptions of the same plaintext must differ")
	}
}

func TestDecryptFailures(t *testing.T) {
	c, err := NewCredentialCipher(testKey)
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}

	valid, err := c.Encrypt("secret")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	nonceHex, cipherHex, _ := strings.Cut(valid, ":")

	// Flip the last hex digit of the ciphertext.
	last := cipherHex[len(cipherHex)-1]
	flipped := byte('0')
	if last == '0' {
		flipped = '1'
	}
	tampered := nonceHex + ":" + cipherHex[:len(cipherHex)-1] + string(flipped)

	tests := []struct {
		name  string
		input string
	}{
		{name: "no separator", input: nonceHex + cipherHex},
		{name: "empty string", input: ""},
		{name: "bad nonce hex", input: "zz:" + cipherHex},
		{name: "short nonce", input: nonceHex[:8] + ":" + cipherHex},
		{name: "bad ciphertext hex", input: nonceHex + ":not-hex"},
		{name: "truncated ciphertext", input: nonceHex + ":abcd"},
		{name: "tampered ciphertext", input: tampered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decrypt(tt.input)
			if !errors.Is(err, ErrDecryptionFailed) {
				t.Errorf("expected ErrDecryptionFailed, got %v", err)
			}
		})
	}
}

func TestDecryptWithDifferentKey(t *testing.T) {
	c1, err := NewCredentialCipher(testKey)
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}
	c2, err := NewCredentialCipher(strings.Repeat("ab", 32))
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}

	encrypted, err := c1.Encrypt("secret")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	if _, err := c2.Decrypt(encrypted); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestNilCipherFailsClosed(t *testing.T) {
	var c *CredentialCipher

	if c.Configured() {
		t.Error("nil cipher must not report configured")
	}
	if _, err := c.Encrypt("secret"); !errors.Is(err, apperrors.ErrEncryptionKeyNotSet) {
		t.Errorf("expected ErrEncryptionKeyNotSet, got %v", err)
	}
	if _, err := c.Decrypt("aa:bb"); !errors.Is(err, apperrors.ErrEncryptionKeyNotSet) {
		t.Errorf("expected ErrEncryptionKeyNotSet, got %v", err)
	}
}
