package domain

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// SessionPrefix starts every shareable session string.
const SessionPrefix = "REMOTELY DATA"

// UnspecifiedHost is printed by a server that does not know which of its
// addresses the client will reach it on.
const UnspecifiedHost = "--"

// Session identifies a server endpoint and the key needed to talk to it.
//
// A Session is immutable once built. Equality is deliberately not provided:
// comparing sessions would compare secrets.
type Session struct {
	Host    string
	Port    uint16
	AuthKey *SecretKey
}

// NewSession builds a session, validating the host.
func NewSession(host string, port uint16, key *SecretKey) (*Session, error) {
	if err := validateHost(host); err != nil {
		return nil, err
	}
	if key == nil {
		return nil, ErrSessionFormat.WithDetails("missing key")
	}
	return &Session{Host: host, Port: port, AuthKey: key}, nil
}

// ParseSession parses the output of UnprotectedString.
//
// Format: "REMOTELY DATA <host> <port> <hex-key>". Surrounding whitespace and
// runs of blanks between fields are tolerated.
func ParseSession(s string) (*Session, error) {
	fields := strings.Fields(s)
	prefix := strings.Fields(SessionPrefix)
	if len(fields) != len(prefix)+3 {
		return nil, ErrSessionFormat.WithDetails(fmt.Sprintf("want %d fields, got %d", len(prefix)+3, len(fields)))
	}
	for i, p := range prefix {
		if fields[i] != p {
			return nil, ErrSessionFormat.WithDetails("missing " + SessionPrefix + " prefix")
		}
	}
	rest := fields[len(prefix):]

	host := rest[0]
	if err := validateHost(host); err != nil {
		return nil, err
	}

	port, err := strconv.ParseUint(rest[1], 10, 16)
	if err != nil {
		return nil, ErrSessionFormat.WithDetails("invalid port").WithCause(err)
	}

	key, err := SecretKeyFromHex(rest[2])
	if err != nil {
		return nil, ErrSessionFormat.WithDetails("invalid key").WithCause(err)
	}

	return &Session{Host: host, Port: uint16(port), AuthKey: key}, nil
}

// UnprotectedString renders the session including the plaintext key.
// Printed once at server startup so it can be pasted into a client.
func (s *Session) UnprotectedString() string {
	return fmt.Sprintf("%s %s %d %s", SessionPrefix, s.Host, s.Port, s.AuthKey.UnprotectedHex())
}

// String renders the session with the key redacted.
func (s *Session) String() string {
	return fmt.Sprintf("%s %s %d %s", SessionPrefix, s.Host, s.Port, redactedKey)
}

// WithHost returns a copy of the session pointing at host, sharing the key.
func (s *Session) WithHost(host string) (*Session, error) {
	return NewSession(host, s.Port, s.AuthKey)
}

// ResolveAddr resolves the session host now. Resolution is never done at
// construction so sessions can be built before the network is reachable.
func (s *Session) ResolveAddr(ctx context.Context) (*net.TCPAddr, error) {
	if s.Host == UnspecifiedHost {
		return nil, ErrResolution.WithDetails("session has no host")
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, s.Host)
	if err != nil {
		return nil, ErrResolution.WithDetails(s.Host).WithCause(err)
	}
	if len(addrs) == 0 {
		return nil, ErrResolution.WithDetails(s.Host + ": no addresses")
	}
	return &net.TCPAddr{IP: addrs[0].IP, Port: int(s.Port), Zone: addrs[0].Zone}, nil
}

func validateHost(host string) error {
	if host == "" {
		return ErrSessionFormat.WithDetails("empty host")
	}
	if strings.ContainsFunc(host, func(r rune) bool { return r <= ' ' || r == 0x7f }) {
		return ErrSessionFormat.WithDetails("host contains whitespace or control characters")
	}
	return nil
}
