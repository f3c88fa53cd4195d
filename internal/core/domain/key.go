package domain

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/awnumar/memguard"
)

// SecretKeySize is the length of the shared secret in bytes.
const SecretKeySize = 32

// redactedKey is what a SecretKey prints as anywhere but UnprotectedHex.
const redactedKey = "***REDACTED***"

// SecretKey is the shared secret authenticating a session.
//
// The material lives in a memguard enclave (encrypted at rest in memory) and
// is decrypted into locked memory only for the duration of WithBytes.
// A SecretKey is immutable and safe to share between goroutines.
type SecretKey struct {
	enclave *memguard.Enclave
}

// GenerateSecretKey creates a new random key.
func GenerateSecretKey() (*SecretKey, error) {
	e := memguard.NewEnclaveRandom(SecretKeySize)
	if e == nil {
		return nil, ErrKeyFormat.WithDetails("random key generation failed")
	}
	return &SecretKey{enclave: e}, nil
}

// SecretKeyFromBytes copies b into a new key. b is left untouched.
func SecretKeyFromBytes(b []byte) (*SecretKey, error) {
	if len(b) != SecretKeySize {
		return nil, ErrKeyFormat.WithDetails(fmt.Sprintf("want %d bytes, got %d", SecretKeySize, len(b)))
	}
	buf := make([]byte, len(b))
	copy(buf, b)
	// NewEnclave wipes buf.
	return &SecretKey{enclave: memguard.NewEnclave(buf)}, nil
}

// SecretKeyFromHex parses a hex encoded key.
func SecretKeyFromHex(s string) (*SecretKey, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, ErrKeyFormat.WithCause(err)
	}
	defer memguard.WipeBytes(raw)
	return SecretKeyFromBytes(raw)
}

// WithBytes runs fn with the plaintext key. fn must not retain the slice.
func (k *SecretKey) WithBytes(fn func(key []byte) error) error {
	if k == nil || k.enclave == nil {
		return ErrKeyFormat.WithDetails("empty key")
	}
	buf, err := k.enclave.Open()
	if err != nil {
		return ErrKeyFormat.WithCause(err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

// UnprotectedHex exports the key in hex. Only for out-of-band sharing,
// never for logs.
func (k *SecretKey) UnprotectedHex() string {
	var out string
	_ = k.WithBytes(func(key []byte) error {
		out = hex.EncodeToString(key)
		return nil
	})
	return out
}

// EqualConstantTime reports whether two keys hold the same material.
func (k *SecretKey) EqualConstantTime(other *SecretKey) bool {
	if k == nil || other == nil {
		return k == other
	}
	equal := false
	_ = k.WithBytes(func(a []byte) error {
		return other.WithBytes(func(b []byte) error {
			equal = subtle.ConstantTimeCompare(a, b) == 1
			return nil
		})
	})
	return equal
}

// String implements fmt.Stringer without revealing the key.
func (k *SecretKey) String() string {
	return redactedKey
}

// GoString keeps %#v from dumping the enclave.
func (k *SecretKey) GoString() string {
	return "domain.SecretKey{" + redactedKey + "}"
}

// LogValue implements slog.LogValuer.
func (k *SecretKey) LogValue() slog.Value {
	return slog.StringValue(redactedKey)
}
