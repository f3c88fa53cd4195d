package transport

import (
	"github.com/yndnr/remotely/internal/net/codec"
	"github.com/yndnr/remotely/internal/telemetry/logger"
	"github.com/yndnr/remotely/pkg/crypto/adaptive"
)

// Options tunes a Transport. The zero value is usable.
type Options struct {
	// MaxFrameSize bounds one plaintext frame. Zero means codec.DefaultMaxFrameSize.
	MaxFrameSize int

	// Cipher forces the AEAD. Empty or auto picks by hardware support.
	// Both peers must agree; a mismatch surfaces as a handshake failure.
	Cipher adaptive.CipherType

	// Logger receives handshake diagnostics. Nil means logger.Default().
	Logger logger.Logger
}

func (o Options) maxFrameSize() int {
	if o.MaxFrameSize <= 0 {
		return codec.DefaultMaxFrameSize
	}
	return o.MaxFrameSize
}

func (o Options) logger() logger.Logger {
	if o.Logger == nil {
		return logger.Default()
	}
	return o.Logger
}
