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

// KeySize is the required symmetric key length (AES-256).
const KeySize = 32

// ErrInvalidInput is returned for empty plaintext or a malformed envelope.
var ErrInvalidInput = errors.New("crypto: invalid input")

// EncryptionError wraps a cipher-layer failure during Encrypt.
type EncryptionError struct {
	cause error
}

func (e *EncryptionError) Error() string {
	return fmt.Sprintf("crypto: encryption failed: %v", e.cause)
}

func (e *EncryptionError) Unwrap() error { return e.cause }

// DecryptionError wraps a bad key, corrupted payload or tampered envelope.
type DecryptionError struct {
	cause error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("crypto: decryption failed: %v", e.cause)
}

func (e *DecryptionError) Unwrap() error { return e.cause }

// Cipher encrypts OAuth secrets for at-rest storage using AES-256-GCM.
// The envelope format is "ivHex:cipherHex"; the IV is not secret but must
// be unique per encryption, so it travels alongside the ciphertext.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher validates the key length and builds the AEAD once at startup.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrInvalidInput, KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &EncryptionError{cause: err}
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, &EncryptionError{cause: err}
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random IV and returns the envelope.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("%w: empty plaintext", ErrInvalidInput)
	}

	iv := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", &EncryptionError{cause: err}
	}

	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(sealed), nil
}

// Decrypt opens an "ivHex:cipherHex" envelope produced by Encrypt.
func (c *Cipher) Decrypt(envelope string) (string, error) {
	ivHex, cipherHex, ok := strings.Cut(envelope, ":")
	if !ok {
		return "", fmt.Errorf("%w: envelope missing separator", ErrInvalidInput)
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return "", &DecryptionError{cause: err}
	}
	if len(iv) != c.aead.NonceSize() {
		return "", &DecryptionError{cause: errors.New("iv length mismatch")}
	}

	sealed, err := hex.DecodeString(cipherHex)
	if err != nil {
		return "", &DecryptionError{cause: err}
	}

	plaintext, err := c.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", &DecryptionError{cause: err}
	}

	return string(plaintext), nil
}
