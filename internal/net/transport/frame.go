package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	msgpack "github.com/hashicorp/go-msgpack/v2/codec"

	"github.com/yndnr/remotely/internal/core/domain"
	"github.com/yndnr/remotely/internal/net/codec"
)

// frameHeaderSize is the length prefix in front of every ciphertext.
const frameHeaderSize = 4

var msgpackHandle = newMsgpackHandle()

func newMsgpackHandle() *msgpack.MsgpackHandle {
	h := &msgpack.MsgpackHandle{}
	h.WriteExt = true
	return h
}

func encode(v any) ([]byte, error) {
	var b []byte
	if err := msgpack.NewEncoderBytes(&b, msgpackHandle).Encode(v); err != nil {
		return nil, err
	}
	return b, nil
}

func decode(b []byte, v any) error {
	return msgpack.NewDecoderBytes(b, msgpackHandle).Decode(v)
}

// ReadHalf is the receiving direction of a Transport.
type ReadHalf struct {
	r     io.Reader
	codec *codec.Codec
	seq   uint64
	peer  net.Addr
	eof   bool
	err   error
}

// Receive reads one frame and decodes it into v, which must be a pointer.
// It returns false and a nil error when the peer closed the stream cleanly at
// a frame boundary. Any other failure leaves the half broken.
func (h *ReadHalf) Receive(v any) (bool, error) {
	if h.err != nil {
		return false, domain.ErrTransportBroken.WithCause(h.err)
	}
	if h.eof {
		return false, nil
	}
	ok, err := h.receive(v)
	if err != nil {
		h.err = err
	}
	return ok, err
}

func (h *ReadHalf) receive(v any) (bool, error) {
	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(h.r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			h.eof = true
			return false, nil
		}
		return false, domain.ErrIO.WithDetails("read frame header").WithCause(err)
	}

	n := binary.BigEndian.Uint32(hdr[:])
	if limit := h.codec.MaxFrameSize() + h.codec.Overhead(); int64(n) > int64(limit) {
		return false, domain.ErrFrameTooLarge.WithDetails(fmt.Sprintf("%d bytes, limit %d", n, limit))
	}

	ciphertext := make([]byte, n)
	if _, err := io.ReadFull(h.r, ciphertext); err != nil {
		return false, domain.ErrIO.WithDetails("read frame body").WithCause(err)
	}

	frame, err := h.codec.Decrypt(ciphertext, h.seq)
	if err != nil {
		return false, err
	}
	h.seq++

	if err := decode(frame, v); err != nil {
		return false, domain.ErrDeserialize.WithCause(err)
	}
	return true, nil
}

// PeerAddr returns the remote address.
func (h *ReadHalf) PeerAddr() net.Addr {
	return h.peer
}

// WriteHalf is the sending direction of a Transport.
type WriteHalf struct {
	w     net.Conn
	codec *codec.Codec
	seq   uint64
	err   error
}

// Send encodes v and writes it as a single frame. Any failure leaves the half
// broken; later calls return ErrTransportBroken.
func (h *WriteHalf) Send(v any) error {
	if h.err != nil {
		return domain.ErrTransportBroken.WithCause(h.err)
	}
	if err := h.send(v); err != nil {
		h.err = err
		return err
	}
	return nil
}

func (h *WriteHalf) send(v any) error {
	frame, err := encode(v)
	if err != nil {
		return domain.ErrSerialize.WithCause(err)
	}
	if len(frame) > h.codec.MaxFrameSize() {
		return domain.ErrFrameTooLarge.WithDetails(fmt.Sprintf("%d bytes, limit %d", len(frame), h.codec.MaxFrameSize()))
	}

	ciphertext, err := h.codec.Encrypt(frame, h.seq)
	if err != nil {
		return err
	}
	h.seq++

	buf := make([]byte, frameHeaderSize+len(ciphertext))
	binary.BigEndian.PutUint32(buf, uint32(len(ciphertext)))
	copy(buf[frameHeaderSize:], ciphertext)
	if err := writeFull(h.w, buf); err != nil {
		return domain.ErrIO.WithDetails("write frame").WithCause(err)
	}
	return nil
}

// Close shuts down the sending direction. On TCP the peer sees EOF while
// this side can keep reading.
func (h *WriteHalf) Close() error {
	if cw, ok := h.w.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return h.w.Close()
}
