package domain

import (
	"errors"
	"strings"
)

// Code identifies a failure as RX-<AREA>-<NNNN>. The number loosely follows
// HTTP status classes: 4xxx blames the peer or the input, 5xxx the local
// side.
type Code string

// Area returns the middle component, e.g. "HSK".
func (c Code) Area() string {
	parts := strings.Split(string(c), "-")
	if len(parts) != 3 {
		return ""
	}
	return parts[1]
}

// PeerFault reports whether the code is in the 4xxx class.
func (c Code) PeerFault() bool {
	i := strings.LastIndexByte(string(c), '-')
	return i >= 0 && i+1 < len(c) && c[i+1] == '4'
}

// Error is a classified failure. The package level values below are
// sentinels: compare with errors.Is, which matches on Code alone, and
// derive annotated copies with WithDetails and WithCause.
type Error struct {
	Code    Code
	Message string
	Details string
	Cause   error
}

func define(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(e.Code))
	b.WriteString("] ")
	b.WriteString(e.Message)
	for _, s := range []string{e.Details, causeText(e.Cause)} {
		if s != "" {
			b.WriteString(": ")
			b.WriteString(s)
		}
	}
	return b.String()
}

func causeText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithDetails returns a copy carrying details. e is not modified.
func (e *Error) WithDetails(details string) *Error {
	c := *e
	c.Details = details
	return &c
}

// WithCause returns a copy wrapping cause. e is not modified.
func (e *Error) WithCause(cause error) *Error {
	c := *e
	c.Cause = cause
	return &c
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Session strings and keys.
var (
	ErrSessionFormat = define("RX-SESS-4000", "malformed session string")
	ErrKeyFormat     = define("RX-SESS-4001", "malformed secret key")
	ErrResolution    = define("RX-SESS-5030", "cannot resolve session address")
)

// Transport. ErrHandshake is fatal to one connection. ErrDecrypt also covers
// a reused sequence number.
var (
	ErrHandshake       = define("RX-HSK-4010", "handshake failed")
	ErrEncrypt         = define("RX-CRYP-5000", "encrypt failed")
	ErrDecrypt         = define("RX-CRYP-4000", "decrypt failed")
	ErrIO              = define("RX-IO-5000", "transport i/o failed")
	ErrTransportBroken = define("RX-IO-5001", "transport broken")
	ErrDeserialize     = define("RX-PROT-4000", "malformed message")
	ErrSerialize       = define("RX-PROT-5000", "cannot encode message")
	ErrFrameTooLarge   = define("RX-PROT-4130", "frame too large")
)

// Server. ErrListener is fatal to the whole server. ErrQueueClosed means a
// connection can no longer deliver responses.
var (
	ErrHandler            = define("RX-HDL-5000", "handler failed")
	ErrUnsupportedRequest = define("RX-HDL-4000", "unsupported request")
	ErrListener           = define("RX-NET-5000", "listener failed")
	ErrQueueClosed        = define("RX-NET-5001", "response queue closed")
)
