package transport

import (
	"context"
	"encoding/hex"
	"net"

	"github.com/yndnr/remotely/internal/core/domain"
	"github.com/yndnr/remotely/pkg/crypto/adaptive"
)

// Transport is an established, framed, possibly encrypted connection.
type Transport struct {
	conn      net.Conn
	role      Role
	tag       string
	encrypted bool
	cipher    adaptive.CipherType

	read  *ReadHalf
	write *WriteHalf
}

// FromHandshake runs the handshake over conn as role. key may be nil only
// if the peer has no key either, in which case the Transport is plaintext.
// ctx bounds the handshake alone. On failure conn is closed.
func FromHandshake(ctx context.Context, conn net.Conn, role Role, key *domain.SecretKey, opts Options) (*Transport, error) {
	release := bindContext(ctx, conn)
	res, err := handshake(conn, role, key, opts)
	release()
	if err != nil {
		_ = conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, domain.ErrHandshake.WithDetails("interrupted").WithCause(ctxErr)
		}
		return nil, err
	}

	t := &Transport{
		conn:      conn,
		role:      role,
		tag:       hex.EncodeToString(res.transcript[:4]),
		encrypted: res.send.Secure(),
		cipher:    res.send.CipherType(),
		read: &ReadHalf{
			r:     conn,
			codec: res.recv,
			peer:  conn.RemoteAddr(),
		},
		write: &WriteHalf{
			w:     conn,
			codec: res.send,
		},
	}

	log := opts.logger().With("peer", t.PeerAddr().String(), "role", role.String(), "conn_tag", t.tag)
	if t.encrypted {
		log.Debug("handshake complete", "cipher", string(t.cipher))
	} else {
		log.Warn("handshake complete without encryption, traffic is plaintext")
	}
	return t, nil
}

// Connect resolves the session address, dials it and handshakes as the
// connector using the session key.
func Connect(ctx context.Context, sess *domain.Session, opts Options) (*Transport, error) {
	addr, err := sess.ResolveAddr(ctx)
	if err != nil {
		return nil, err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return nil, domain.ErrIO.WithDetails("dial " + addr.String()).WithCause(err)
	}
	return FromHandshake(ctx, conn, RoleConnector, sess.AuthKey, opts)
}

// Send writes one message. It must not be called concurrently with itself.
func (t *Transport) Send(v any) error {
	if t.write == nil {
		return domain.ErrTransportBroken.WithDetails("transport was split")
	}
	return t.write.Send(v)
}

// Receive reads one message into v. See ReadHalf.Receive.
func (t *Transport) Receive(v any) (bool, error) {
	if t.read == nil {
		return false, domain.ErrTransportBroken.WithDetails("transport was split")
	}
	return t.read.Receive(v)
}

// IntoSplit hands each direction to its own owner. The Transport keeps only
// Close and the accessors afterwards.
func (t *Transport) IntoSplit() (*ReadHalf, *WriteHalf) {
	r, w := t.read, t.write
	t.read, t.write = nil, nil
	return r, w
}

// Close closes the underlying connection.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// PeerAddr returns the remote address.
func (t *Transport) PeerAddr() net.Addr {
	return t.conn.RemoteAddr()
}

// ConnectionTag is a short identifier derived from the handshake transcript.
// Both peers compute the same tag, which makes their logs easy to correlate.
func (t *Transport) ConnectionTag() string {
	return t.tag
}

// Encrypted reports whether frames are encrypted.
func (t *Transport) Encrypted() bool {
	return t.encrypted
}

// Cipher returns the negotiated AEAD, or "" for a plaintext transport.
func (t *Transport) Cipher() adaptive.CipherType {
	return t.cipher
}

// Role returns the side this Transport played in the handshake.
func (t *Transport) Role() Role {
	return t.role
}
