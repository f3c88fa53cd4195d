// Package transport carries msgpack-encoded messages over a stream
// connection, authenticated and encrypted by keys agreed in a handshake.
//
// A Transport starts in the handshaking state inside FromHandshake and is
// either returned established or not at all. Once established, every message
// travels as one frame:
//
//	[4-byte big-endian length][ciphertext + tag]
//
// Each direction keeps its own implicit sequence number, starting at zero,
// which selects the nonce and is bound as associated data. IntoSplit hands the
// two directions to separate goroutines; the halves share no mutable state.
package transport
