// Package codec turns transport frames into authenticated ciphertext and back.
//
// A Codec covers one direction of one connection. Every frame is sealed under
// a nonce built from a 4-byte per-direction prefix and the frame's 64-bit
// sequence number, and the sequence is bound again as associated data.
// Sequences must strictly increase in each of Encrypt and Decrypt, so a
// (key, nonce) pair is never used twice and a replayed or reordered frame
// fails to open.
//
// Plain returns the explicit unencrypted variant used when neither peer has a
// key configured.
package codec
