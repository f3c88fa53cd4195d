package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/yndnr/remotely/internal/core/domain"
	"github.com/yndnr/remotely/pkg/crypto/adaptive"
)

const (
	// NoncePrefixSize is the per-direction part of every nonce.
	NoncePrefixSize = 4

	// DefaultMaxFrameSize bounds a single plaintext frame.
	DefaultMaxFrameSize = 16 << 20
)

// Codec seals and opens frames for one direction of a connection.
// It is not safe for concurrent use; each transport half owns its own.
type Codec struct {
	cipher       adaptive.Cipher
	cipherType   adaptive.CipherType
	prefix       [NoncePrefixSize]byte
	maxFrameSize int

	sealed   bool
	lastSeal uint64
	opened   bool
	lastOpen uint64
}

// Option configures a Codec.
type Option func(*Codec)

// WithCipher forces a cipher instead of the hardware-based choice.
func WithCipher(t adaptive.CipherType) Option {
	return func(c *Codec) {
		c.cipherType = t
	}
}

// WithMaxFrameSize overrides DefaultMaxFrameSize.
func WithMaxFrameSize(n int) Option {
	return func(c *Codec) {
		if n > 0 {
			c.maxFrameSize = n
		}
	}
}

// New creates an encrypting codec from a 32-byte key and a nonce prefix.
// The key is copied into the cipher state; the caller may wipe it afterwards.
func New(key, noncePrefix []byte, opts ...Option) (*Codec, error) {
	if len(noncePrefix) != NoncePrefixSize {
		return nil, domain.ErrEncrypt.WithDetails(fmt.Sprintf("nonce prefix must be %d bytes", NoncePrefixSize))
	}

	c := &Codec{
		cipherType:   adaptive.CipherAuto,
		maxFrameSize: DefaultMaxFrameSize,
	}
	for _, opt := range opts {
		opt(c)
	}

	aead, err := adaptive.NewWithType(key, c.cipherType)
	if err != nil {
		return nil, domain.ErrEncrypt.WithCause(err)
	}
	c.cipher = aead
	c.cipherType = aead.Type()
	copy(c.prefix[:], noncePrefix)
	return c, nil
}

// Plain returns a codec that passes frames through unchanged. It still
// enforces sequence ordering and the frame size limit.
func Plain(opts ...Option) *Codec {
	c := &Codec{maxFrameSize: DefaultMaxFrameSize}
	for _, opt := range opts {
		opt(c)
	}
	c.cipherType = ""
	return c
}

// Secure reports whether frames are encrypted.
func (c *Codec) Secure() bool {
	return c.cipher != nil
}

// CipherType returns the negotiated cipher, or "" for a plain codec.
func (c *Codec) CipherType() adaptive.CipherType {
	return c.cipherType
}

// Overhead is the number of bytes Encrypt adds to a frame.
func (c *Codec) Overhead() int {
	if c.cipher == nil {
		return 0
	}
	return c.cipher.Overhead()
}

// MaxFrameSize is the largest plaintext frame accepted.
func (c *Codec) MaxFrameSize() int {
	return c.maxFrameSize
}

// Encrypt seals frame as sequence number seq.
func (c *Codec) Encrypt(frame []byte, seq uint64) ([]byte, error) {
	if len(frame) > c.maxFrameSize {
		return nil, domain.ErrEncrypt.WithDetails(fmt.Sprintf("frame of %d bytes exceeds limit %d", len(frame), c.maxFrameSize))
	}
	if c.sealed && seq <= c.lastSeal {
		return nil, domain.ErrEncrypt.WithDetails(fmt.Sprintf("sequence %d already used", seq))
	}

	var out []byte
	if c.cipher == nil {
		out = append([]byte(nil), frame...)
	} else {
		nonce, aad := c.nonce(seq)
		sealed, err := c.cipher.Seal(nonce[:], frame, aad[:])
		if err != nil {
			return nil, domain.ErrEncrypt.WithCause(err)
		}
		out = sealed
	}

	c.sealed = true
	c.lastSeal = seq
	return out, nil
}

// Decrypt opens ciphertext expected to be sequence number seq.
func (c *Codec) Decrypt(ciphertext []byte, seq uint64) ([]byte, error) {
	if c.opened && seq <= c.lastOpen {
		return nil, domain.ErrDecrypt.WithDetails(fmt.Sprintf("sequence %d already used", seq))
	}
	if len(ciphertext) > c.maxFrameSize+c.Overhead() {
		return nil, domain.ErrDecrypt.WithDetails("ciphertext exceeds frame limit")
	}

	var out []byte
	if c.cipher == nil {
		out = append([]byte(nil), ciphertext...)
	} else {
		nonce, aad := c.nonce(seq)
		opened, err := c.cipher.Open(nonce[:], ciphertext, aad[:])
		if err != nil {
			return nil, domain.ErrDecrypt.WithCause(err)
		}
		out = opened
	}

	c.opened = true
	c.lastOpen = seq
	return out, nil
}

func (c *Codec) nonce(seq uint64) (nonce [adaptive.NonceSize]byte, aad [8]byte) {
	copy(nonce[:NoncePrefixSize], c.prefix[:])
	binary.BigEndian.PutUint64(nonce[NoncePrefixSize:], seq)
	binary.BigEndian.PutUint64(aad[:], seq)
	return nonce, aad
}
