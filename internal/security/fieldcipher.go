package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	keySize   = 32
	nonceSize = 12
	tagSize   = 16
)

// ErrDecryptionFailed is returned when stored ciphertext fails authentication
// or does not parse as a nonce:ciphertext:tag triple. Callers must treat it
// as a hard failure, never as an empty value.
var ErrDecryptionFailed = errors.New("field cipher: decryption failed")

// DeriveKey interprets configured key material as base64, then hex, then as a
// raw 32-byte string (development convenience). The first interpretation
// yielding exactly 32 bytes wins. Returns nil when no valid key derives.
func DeriveKey(material string) []byte {
	if material == "" {
		return nil
	}

	if b, err := base64.StdEncoding.DecodeString(material); err == nil && len(b) == keySize {
		return b
	}

	if b, err := hex.DecodeString(material); err == nil && len(b) == keySize {
		return b
	}

	if len(material) == keySize {
		return []byte(material)
	}

	return nil
}

// FieldCipher encrypts a single opaque column with AES-256-GCM using a fresh
// random nonce per call. Stored values are three colon-separated base64
// segments: nonce, ciphertext, authentication tag.
//
// Without a derivable key the cipher is a transparent no-op; production
// configuration validation refuses to start in that state.
type FieldCipher struct {
	key []byte
}

func NewFieldCipher(keyMaterial string) *FieldCipher {
	return &FieldCipher{key: DeriveKey(keyMaterial)}
}

// Enabled reports whether a valid key was derived at construction.
func (c *FieldCipher) Enabled() bool {
	return c.key != nil
}

func (c *FieldCipher) Encrypt(plaintext string) (string, error) {
	if c.key == nil {
		return plaintext, nil
	}

	aead, err := c.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("field cipher: nonce generation: %w", err)
	}

	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return strings.Join([]string{
		base64.StdEncoding.EncodeToString(nonce),
		base64.StdEncoding.EncodeToString(ciphertext),
		base64.StdEncoding.EncodeToString(tag),
	}, ":"), nil
}

func (c *FieldCipher) Decrypt(stored string) (string, error) {
	if c.key == nil {
		return stored, nil
	}

	parts := strings.Split(stored, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: expected nonce:ciphertext:tag", ErrDecryptionFailed)
	}

	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return "", fmt.Errorf("%w: malformed nonce", ErrDecryptionFailed)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: malformed ciphertext", ErrDecryptionFailed)
	}
	tag, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil || len(tag) != tagSize {
		return "", fmt.Errorf("%w: malformed tag", ErrDecryptionFailed)
	}

	aead, err := c.aead()
	if err != nil {
		return "", err
	}

	plaintext, err := aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return string(plaintext), nil
}

// EncryptValue serializes non-string values to JSON before encrypting, so
// structured provider responses round-trip through the opaque column.
func (c *FieldCipher) EncryptValue(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return c.Encrypt(v)
	case []byte:
		return c.Encrypt(string(v))
	case json.RawMessage:
		return c.Encrypt(string(v))
	default:
		serialized, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("field cipher: serialize: %w", err)
		}
		return c.Encrypt(string(serialized))
	}
}

// DecryptValue decrypts and attempts to parse the plaintext as JSON, falling
// back to the raw string when it is not structured data.
func (c *FieldCipher) DecryptValue(stored string) (any, error) {
	if stored == "" {
		return nil, nil
	}

	plaintext, err := c.Decrypt(stored)
	if err != nil {
		return nil, err
	}

	var parsed any
	if err := json.Unmarshal([]byte(plaintext), &parsed); err != nil {
		return plaintext, nil
	}
	return parsed, nil
}

func (c *FieldCipher) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("field cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
