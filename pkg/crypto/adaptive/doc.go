// Package adaptive provides adaptive AEAD selection for remotely.
//
// This package implements a cipher abstraction that selects the best
// available algorithm based on hardware capabilities, or an explicitly
// configured one.
//
// Supported Algorithms:
//
//   - AES-256-GCM: Preferred when hardware AES support is available
//   - ChaCha20-Poly1305: Fallback for systems without AES-NI
//
// Nonces are supplied by the caller. The transport layer derives them from
// a per-direction counter, so a Cipher never draws random nonces itself and
// never reuses one as long as the caller keeps its counter monotonic.
//
// Usage:
//
//	c, err := adaptive.New(key)
//	sealed, err := c.Seal(nonce, plaintext, aad)
//	plaintext, err := c.Open(nonce, sealed, aad)
package adaptive
