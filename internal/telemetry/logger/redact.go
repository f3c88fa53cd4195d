package logger

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// redactedValue replaces anything that could reveal a session key.
const redactedValue = "***REDACTED***"

var (
	// sessionPattern finds "REMOTELY DATA <host> <port> <hex-key>" inside a
	// larger string. The key is the second group.
	sessionPattern = regexp.MustCompile(`(REMOTELY\s+DATA\s+\S+\s+\S+\s+)([0-9a-fA-F]+)`)

	// hexKeyPattern is a bare 32-byte key.
	hexKeyPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
)

// secretFields are substrings of attribute names whose values are never
// logged.
var secretFields = []string{"password", "secret", "token", "key", "credential", "auth", "session"}

// redactHandler masks session keys in messages and attributes before
// passing records on.
type redactHandler struct {
	next slog.Handler
}

func (h redactHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.next.Enabled(ctx, lvl)
}

func (h redactHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, RedactString(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h redactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = redactAttr(a)
	}
	return redactHandler{next: h.next.WithAttrs(masked)}
}

func (h redactHandler) WithGroup(name string) slog.Handler {
	return redactHandler{next: h.next.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		switch {
		case s == "":
		case IsSensitiveKey(a.Key):
			return slog.String(a.Key, redactedValue)
		case IsSensitiveValue(s):
			return slog.String(a.Key, RedactString(s))
		}
	case slog.KindGroup:
		group := v.Group()
		masked := make([]slog.Attr, len(group))
		for i, g := range group {
			masked[i] = redactAttr(g)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(masked...)}
	}
	return a
}

// RedactString masks the key of every session string in s. A bare hex key
// is masked entirely.
func RedactString(s string) string {
	if hexKeyPattern.MatchString(s) {
		return redactedValue
	}
	if !strings.Contains(s, "DATA") {
		return s
	}
	return sessionPattern.ReplaceAllString(s, "${1}"+redactedValue)
}

// IsSensitiveKey reports whether an attribute name suggests secret content.
func IsSensitiveKey(name string) bool {
	name = strings.ToLower(name)
	for _, f := range secretFields {
		if strings.Contains(name, f) {
			return true
		}
	}
	return false
}

// IsSensitiveValue reports whether s holds a session string or a bare key.
func IsSensitiveValue(s string) bool {
	return hexKeyPattern.MatchString(s) || sessionPattern.MatchString(s)
}
