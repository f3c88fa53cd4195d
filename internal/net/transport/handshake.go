package transport

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/yndnr/remotely/internal/core/domain"
	"github.com/yndnr/remotely/internal/net/codec"
	"github.com/yndnr/remotely/pkg/crypto/adaptive"
)

// Role selects which side of the handshake a peer plays.
type Role uint8

const (
	// RoleListener is the accepting side. It speaks first.
	RoleListener Role = iota + 1
	// RoleConnector is the dialing side.
	RoleConnector
)

func (r Role) String() string {
	switch r {
	case RoleListener:
		return "listener"
	case RoleConnector:
		return "connector"
	default:
		return fmt.Sprintf("role(%d)", r)
	}
}

const (
	helloMagic   = "RMTL"
	helloVersion = 1

	pubKeySize = 32
	saltSize   = 32
	helloSize  = len(helloMagic) + 3 + pubKeySize + saltSize

	confirmSize = sha256.Size
	keyInfo     = "remotely/v1 keys"
)

const (
	modePlain  byte = 0
	modeSecret byte = 1
)

const (
	cipherNone     byte = 0
	cipherAESGCM   byte = 1
	cipherChaCha20 byte = 2
)

// hello is the first message each side sends.
//
//	magic(4) version(1) mode(1) cipher(1) x25519 public key(32) salt(32)
type hello struct {
	version byte
	mode    byte
	cipher  byte
	pub     [pubKeySize]byte
	salt    [saltSize]byte
}

func (h *hello) marshal() []byte {
	b := make([]byte, 0, helloSize)
	b = append(b, helloMagic...)
	b = append(b, h.version, h.mode, h.cipher)
	b = append(b, h.pub[:]...)
	b = append(b, h.salt[:]...)
	return b
}

func parseHello(b []byte) (*hello, error) {
	if len(b) != helloSize || !bytes.Equal(b[:len(helloMagic)], []byte(helloMagic)) {
		return nil, fmt.Errorf("bad magic")
	}
	off := len(helloMagic)
	h := &hello{version: b[off], mode: b[off+1], cipher: b[off+2]}
	if h.version != helloVersion {
		return nil, fmt.Errorf("unsupported version %d", h.version)
	}
	if h.mode != modePlain && h.mode != modeSecret {
		return nil, fmt.Errorf("unknown mode %d", h.mode)
	}
	off += 3
	copy(h.pub[:], b[off:off+pubKeySize])
	copy(h.salt[:], b[off+pubKeySize:])
	return h, nil
}

func cipherID(t adaptive.CipherType) byte {
	switch t {
	case adaptive.CipherAESGCM:
		return cipherAESGCM
	case adaptive.CipherChaCha20:
		return cipherChaCha20
	default:
		return cipherNone
	}
}

func cipherFromID(id byte) (adaptive.CipherType, bool) {
	switch id {
	case cipherAESGCM:
		return adaptive.CipherAESGCM, true
	case cipherChaCha20:
		return adaptive.CipherChaCha20, true
	default:
		return "", false
	}
}

// handshakeResult is what an established handshake hands to the Transport.
type handshakeResult struct {
	send       *codec.Codec
	recv       *codec.Codec
	transcript [sha256.Size]byte
}

// directionKeys is the HKDF output, split per direction.
type directionKeys struct {
	material []byte

	l2cKey, c2lKey         []byte
	l2cPrefix, c2lPrefix   []byte
	l2cConfirm, c2lConfirm []byte
}

func deriveKeys(psk, shared []byte, transcript []byte) (*directionKeys, error) {
	ikm := make([]byte, 0, len(psk)+len(shared))
	ikm = append(ikm, psk...)
	ikm = append(ikm, shared...)
	defer clear(ikm)

	const keySize = domain.SecretKeySize
	out := make([]byte, 2*keySize+2*codec.NoncePrefixSize+2*confirmSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, transcript, []byte(keyInfo)), out); err != nil {
		clear(out)
		return nil, err
	}

	k := &directionKeys{material: out}
	rest := out
	take := func(n int) []byte {
		b := rest[:n:n]
		rest = rest[n:]
		return b
	}
	k.l2cKey = take(keySize)
	k.c2lKey = take(keySize)
	k.l2cPrefix = take(codec.NoncePrefixSize)
	k.c2lPrefix = take(codec.NoncePrefixSize)
	k.l2cConfirm = take(confirmSize)
	k.c2lConfirm = take(confirmSize)
	return k, nil
}

func (k *directionKeys) wipe() {
	clear(k.material)
}

func confirmTag(key []byte, role Role, transcript []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(role.String()))
	mac.Write(transcript)
	return mac.Sum(nil)
}

func handshakeErr(details string, cause error) error {
	if cause == nil {
		return domain.ErrHandshake.WithDetails(details)
	}
	return domain.ErrHandshake.WithDetails(details).WithCause(cause)
}

// handshake runs the key agreement over conn. It never sends application
// frames; on failure no derived key material outlives the call.
func handshake(conn net.Conn, role Role, key *domain.SecretKey, opts Options) (*handshakeResult, error) {
	local := &hello{version: helloVersion, mode: modePlain}
	if key != nil {
		local.mode = modeSecret
	}
	if _, err := rand.Read(local.salt[:]); err != nil {
		return nil, handshakeErr("generate salt", err)
	}

	var eph *ecdh.PrivateKey
	if local.mode == modeSecret {
		var err error
		eph, err = ecdh.X25519().GenerateKey(rand.Reader)
		if err != nil {
			return nil, handshakeErr("generate x25519 key", err)
		}
		copy(local.pub[:], eph.PublicKey().Bytes())

		// A connector left on auto adopts whatever the listener picked.
		wanted := opts.Cipher
		if role == RoleListener || (wanted != adaptive.CipherAuto && wanted != "") {
			wanted, err = adaptive.Resolve(opts.Cipher)
			if err != nil {
				return nil, handshakeErr("cipher", err)
			}
		}
		local.cipher = cipherID(wanted)
	}

	var (
		peer           *hello
		listenerHello  []byte
		connectorHello []byte
		err            error
		adoptCipher    = role == RoleConnector && local.cipher == cipherNone
	)

	switch role {
	case RoleListener:
		listenerHello = local.marshal()
		if err := writeFull(conn, listenerHello); err != nil {
			return nil, handshakeErr("send hello", err)
		}
		connectorHello, peer, err = readHello(conn)
		if err != nil {
			return nil, err
		}
	case RoleConnector:
		listenerHello, peer, err = readHello(conn)
		if err != nil {
			return nil, err
		}
		if local.mode == modeSecret && adoptCipher {
			local.cipher = peer.cipher
		}
		connectorHello = local.marshal()
		if err := writeFull(conn, connectorHello); err != nil {
			return nil, handshakeErr("send hello", err)
		}
	default:
		return nil, handshakeErr(fmt.Sprintf("invalid %s", role), nil)
	}

	if peer.mode != local.mode {
		return nil, handshakeErr("peer key presence mismatch", nil)
	}

	res := &handshakeResult{}
	h := sha256.New()
	h.Write(listenerHello)
	h.Write(connectorHello)
	h.Sum(res.transcript[:0])

	if local.mode == modePlain {
		res.send = codec.Plain(codec.WithMaxFrameSize(opts.maxFrameSize()))
		res.recv = codec.Plain(codec.WithMaxFrameSize(opts.maxFrameSize()))
		return res, nil
	}

	if peer.cipher != local.cipher {
		return nil, handshakeErr("cipher mismatch", nil)
	}
	cipherType, ok := cipherFromID(local.cipher)
	if !ok {
		return nil, handshakeErr(fmt.Sprintf("unknown cipher id %d", local.cipher), nil)
	}

	peerPub, err := ecdh.X25519().NewPublicKey(peer.pub[:])
	if err != nil {
		return nil, handshakeErr("peer public key", err)
	}
	shared, err := eph.ECDH(peerPub)
	if err != nil {
		return nil, handshakeErr("ecdh", err)
	}
	defer clear(shared)

	var keys *directionKeys
	err = key.WithBytes(func(psk []byte) error {
		var derr error
		keys, derr = deriveKeys(psk, shared, res.transcript[:])
		return derr
	})
	if err != nil {
		return nil, handshakeErr("derive keys", err)
	}
	defer keys.wipe()

	sendKey, sendPrefix, recvKey, recvPrefix := keys.l2cKey, keys.l2cPrefix, keys.c2lKey, keys.c2lPrefix
	ownConfirm, peerConfirm, peerRole := keys.l2cConfirm, keys.c2lConfirm, RoleConnector
	if role == RoleConnector {
		sendKey, sendPrefix, recvKey, recvPrefix = recvKey, recvPrefix, sendKey, sendPrefix
		ownConfirm, peerConfirm, peerRole = peerConfirm, ownConfirm, RoleListener
	}

	copts := []codec.Option{codec.WithCipher(cipherType), codec.WithMaxFrameSize(opts.maxFrameSize())}
	if res.send, err = codec.New(sendKey, sendPrefix, copts...); err != nil {
		return nil, handshakeErr("send codec", err)
	}
	if res.recv, err = codec.New(recvKey, recvPrefix, copts...); err != nil {
		return nil, handshakeErr("receive codec", err)
	}

	ownTag := confirmTag(ownConfirm, role, res.transcript[:])
	wantTag := confirmTag(peerConfirm, peerRole, res.transcript[:])

	if role == RoleListener {
		if err := writeFull(conn, ownTag); err != nil {
			return nil, handshakeErr("send confirmation", err)
		}
		if err := readConfirm(conn, wantTag); err != nil {
			return nil, err
		}
	} else {
		if err := readConfirm(conn, wantTag); err != nil {
			return nil, err
		}
		if err := writeFull(conn, ownTag); err != nil {
			return nil, handshakeErr("send confirmation", err)
		}
	}
	return res, nil
}

func readHello(r io.Reader) ([]byte, *hello, error) {
	buf := make([]byte, helloSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, nil, handshakeErr("read hello", err)
	}
	h, err := parseHello(buf)
	if err != nil {
		return nil, nil, handshakeErr("invalid hello", err)
	}
	return buf, h, nil
}

func readConfirm(r io.Reader, want []byte) error {
	got := make([]byte, confirmSize)
	if _, err := io.ReadFull(r, got); err != nil {
		return handshakeErr("read confirmation", err)
	}
	if !hmac.Equal(got, want) {
		return handshakeErr("key confirmation mismatch", nil)
	}
	return nil
}

func writeFull(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// bindContext interrupts blocked I/O on conn once ctx is done, so a failure
// caused by ctx always observes ctx.Err() != nil. The returned func releases
// conn from ctx.
func bindContext(ctx context.Context, conn net.Conn) func() {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			_ = conn.SetDeadline(time.Unix(1, 0))
		case <-done:
		}
	}()
	return func() {
		close(done)
		<-exited
		_ = conn.SetDeadline(time.Time{})
	}
}
