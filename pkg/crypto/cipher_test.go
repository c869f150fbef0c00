package crypto

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, KeySize)
}

func TestRoundTrip(t *testing.T) {
	c, err := NewCipher(testKey())
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}

	plaintexts := []string{"a", "access-token-xyz", strings.Repeat("long", 1024)}
	for _, p := range plaintexts {
		env, err := c.Encrypt(p)
		if err != nil {
			t.Fatalf("encrypt %q: %v", p, err)
		}
		if !strings.Contains(env, ":") {
			t.Fatalf("envelope missing separator: %q", env)
		}
		got, err := c.Decrypt(env)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if got != p {
			t.Fatalf("round trip mismatch: got %q want %q", got, p)
		}
	}
}

func TestEncryptUniqueIV(t *testing.T) {
	c, _ := NewCipher(testKey())
	a, _ := c.Encrypt("same input")
	b, _ := c.Encrypt("same input")
	if a == b {
		t.Fatal("two encryptions of the same plaintext produced identical envelopes")
	}
}

func TestEncryptEmptyPlaintext(t *testing.T) {
	c, _ := NewCipher(testKey())
	if _, err := c.Encrypt(""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestNewCipherBadKeyLength(t *testing.T) {
	if _, err := NewCipher([]byte("short")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDecryptMalformedEnvelope(t *testing.T) {
	c, _ := NewCipher(testKey())
	if _, err := c.Decrypt("no-separator-here"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDecryptTamperDetection(t *testing.T) {
	c, _ := NewCipher(testKey())
	env, err := c.Encrypt("secret refresh token")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	// Flip one hex digit at every position; decryption must always fail
	// with a DecryptionError and never return wrong plaintext.
	for i := 0; i < len(env); i++ {
		if env[i] == ':' {
			continue
		}
		mutated := []byte(env)
		if mutated[i] == '0' {
			mutated[i] = '1'
		} else {
			mutated[i] = '0'
		}
		if string(mutated) == env {
			continue
		}

		got, err := c.Decrypt(string(mutated))
		if err == nil {
			t.Fatalf("tampered envelope at byte %d decrypted to %q", i, got)
		}
		var decErr *DecryptionError
		if !errors.As(err, &decErr) {
			t.Fatalf("expected DecryptionError at byte %d, got %v", i, err)
		}
	}
}

func TestDecryptWrongKey(t *testing.T) {
	c1, _ := NewCipher(testKey())
	c2, _ := NewCipher(bytes.Repeat([]byte{0x43}, KeySize))

	env, _ := c1.Encrypt("token")
	var decErr *DecryptionError
	if _, err := c2.Decrypt(env); !errors.As(err, &decErr) {
		t.Fatalf("expected DecryptionError, got %v", err)
	}
}
