package adaptive

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sys/cpu"
)

// CipherType identifies the cipher algorithm.
type CipherType string

const (
	CipherAuto     CipherType = "auto"
	CipherAESGCM   CipherType = "aes-gcm"
	CipherChaCha20 CipherType = "chacha20-poly1305"
)

// NonceSize is the nonce size shared by every supported cipher.
const NonceSize = 12

var (
	// ErrInvalidNonce is returned when the supplied nonce has the wrong size.
	ErrInvalidNonce = errors.New("adaptive: invalid nonce size")

	// ErrUnknownCipher is returned for an unrecognised cipher name.
	ErrUnknownCipher = errors.New("adaptive: unknown cipher type")

	// ErrShortCiphertext is returned by Open for input shorter than a tag.
	ErrShortCiphertext = errors.New("adaptive: ciphertext too short")
)

// Cipher provides authenticated encryption with caller-supplied nonces.
type Cipher interface {
	// Type returns the cipher type.
	Type() CipherType

	// Seal encrypts and authenticates plaintext under nonce.
	Seal(nonce, plaintext, additionalData []byte) ([]byte, error)

	// Open authenticates and decrypts ciphertext under nonce.
	Open(nonce, ciphertext, additionalData []byte) ([]byte, error)

	// NonceSize returns the nonce size in bytes.
	NonceSize() int

	// Overhead returns the authentication tag size in bytes.
	Overhead() int
}

// New creates a new adaptive cipher with the given key.
//
// It automatically selects the optimal algorithm based on hardware.
func New(key []byte) (Cipher, error) {
	if hasAESNI() {
		return NewAESGCM(key)
	}
	return NewChaCha20(key)
}

// NewWithType creates a cipher of the specified type.
// CipherAuto and the empty string behave like New.
func NewWithType(key []byte, cipherType CipherType) (Cipher, error) {
	switch cipherType {
	case CipherAuto, "":
		return New(key)
	case CipherAESGCM:
		return NewAESGCM(key)
	case CipherChaCha20:
		return NewChaCha20(key)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCipher, cipherType)
	}
}

// ParseCipherType parses a configured cipher name.
func ParseCipherType(s string) (CipherType, error) {
	switch CipherType(strings.ToLower(strings.TrimSpace(s))) {
	case CipherAuto, "":
		return CipherAuto, nil
	case CipherAESGCM, "aes", "aes-256-gcm":
		return CipherAESGCM, nil
	case CipherChaCha20, "chacha20":
		return CipherChaCha20, nil
	default:
		return "", ErrUnknownCipher
	}
}

// Resolve maps CipherAuto to the algorithm New would pick on this machine
// and validates explicit types.
func Resolve(cipherType CipherType) (CipherType, error) {
	switch cipherType {
	case CipherAuto, "":
		if hasAESNI() {
			return CipherAESGCM, nil
		}
		return CipherChaCha20, nil
	case CipherAESGCM, CipherChaCha20:
		return cipherType, nil
	default:
		return "", ErrUnknownCipher
	}
}

// hasAESNI reports whether the CPU has AES instructions, in which case
// AES-GCM outruns ChaCha20-Poly1305.
func hasAESNI() bool {
	switch runtime.GOARCH {
	case "amd64":
		return cpu.X86.HasAES && cpu.X86.HasPCLMULQDQ
	case "arm64":
		return cpu.ARM64.HasAES && cpu.ARM64.HasPMULL
	case "s390x":
		return cpu.S390X.HasAES && cpu.S390X.HasGHASH
	}
	return false
}
