package domain

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func mustKey(t *testing.T) *SecretKey {
	t.Helper()
	k, err := GenerateSecretKey()
	if err != nil {
		t.Fatalf("GenerateSecretKey() error = %v", err)
	}
	return k
}

func TestSession_RoundTrip(t *testing.T) {
	hosts := []string{"127.0.0.1", "::1", "example.com", UnspecifiedHost, "fe80::1%eth0"}
	ports := []uint16{0, 1, 8080, 65535}

	for _, host := range hosts {
		for _, port := range ports {
			s, err := NewSession(host, port, mustKey(t))
			if err != nil {
				t.Fatalf("NewSession(%q, %d) error = %v", host, port, err)
			}

			parsed, err := ParseSession(s.UnprotectedString())
			if err != nil {
				t.Fatalf("ParseSession(%q) error = %v", s.UnprotectedString(), err)
			}
			if parsed.Host != s.Host || parsed.Port != s.Port {
				t.Errorf("round trip = %s:%d, want %s:%d", parsed.Host, parsed.Port, s.Host, s.Port)
			}
			if !parsed.AuthKey.EqualConstantTime(s.AuthKey) {
				t.Error("round trip changed the key")
			}
		}
	}
}

func TestParseSession_Errors(t *testing.T) {
	key := strings.Repeat("ab", SecretKeySize)
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"missing prefix", "127.0.0.1 80 " + key},
		{"wrong prefix", "DISTANT DATA 127.0.0.1 80 " + key},
		{"missing key", SessionPrefix + " 127.0.0.1 80"},
		{"extra field", SessionPrefix + " 127.0.0.1 80 " + key + " extra"},
		{"port not a number", SessionPrefix + " 127.0.0.1 http " + key},
		{"port out of range", SessionPrefix + " 127.0.0.1 65536 " + key},
		{"negative port", SessionPrefix + " 127.0.0.1 -1 " + key},
		{"short key", SessionPrefix + " 127.0.0.1 80 abcd"},
		{"bad hex", SessionPrefix + " 127.0.0.1 80 " + strings.Repeat("g", 64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSession(tt.in)
			if !errors.Is(err, ErrSessionFormat) {
				t.Errorf("ParseSession() error = %v, want ErrSessionFormat", err)
			}
		})
	}
}

func TestParseSession_ToleratesWhitespace(t *testing.T) {
	key := strings.Repeat("cd", SecretKeySize)
	s, err := ParseSession("\n  " + SessionPrefix + "   localhost\t4000 " + key + "  \n")
	if err != nil {
		t.Fatalf("ParseSession() error = %v", err)
	}
	if s.Host != "localhost" || s.Port != 4000 {
		t.Errorf("ParseSession() = %s:%d", s.Host, s.Port)
	}
}

func TestNewSession_Validation(t *testing.T) {
	if _, err := NewSession("", 1, mustKey(t)); !errors.Is(err, ErrSessionFormat) {
		t.Errorf("empty host error = %v", err)
	}
	if _, err := NewSession("bad host", 1, mustKey(t)); !errors.Is(err, ErrSessionFormat) {
		t.Errorf("host with space error = %v", err)
	}
	if _, err := NewSession("host", 1, nil); !errors.Is(err, ErrSessionFormat) {
		t.Errorf("nil key error = %v", err)
	}
}

func TestSession_StringRedactsKey(t *testing.T) {
	s, _ := NewSession("127.0.0.1", 22, mustKey(t))
	if strings.Contains(s.String(), s.AuthKey.UnprotectedHex()) {
		t.Error("String() leaks key")
	}
	if !strings.Contains(s.UnprotectedString(), s.AuthKey.UnprotectedHex()) {
		t.Error("UnprotectedString() should contain the key")
	}
}

func TestSession_WithHost(t *testing.T) {
	s, _ := NewSession(UnspecifiedHost, 9000, mustKey(t))
	c, err := s.WithHost("127.0.0.1")
	if err != nil {
		t.Fatalf("WithHost() error = %v", err)
	}
	if c.Host != "127.0.0.1" || c.Port != 9000 || c.AuthKey != s.AuthKey {
		t.Errorf("WithHost() = %+v", c)
	}
	if s.Host != UnspecifiedHost {
		t.Error("WithHost() modified the original")
	}
}

func TestSession_ResolveAddr(t *testing.T) {
	s, _ := NewSession("127.0.0.1", 9000, mustKey(t))
	addr, err := s.ResolveAddr(context.Background())
	if err != nil {
		t.Fatalf("ResolveAddr() error = %v", err)
	}
	if addr.String() != "127.0.0.1:9000" {
		t.Errorf("ResolveAddr() = %s", addr)
	}

	unspecified, _ := NewSession(UnspecifiedHost, 9000, mustKey(t))
	if _, err := unspecified.ResolveAddr(context.Background()); !errors.Is(err, ErrResolution) {
		t.Errorf("ResolveAddr(--) error = %v, want ErrResolution", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	invalid, _ := NewSession("host.invalid", 9000, mustKey(t))
	if _, err := invalid.ResolveAddr(ctx); !errors.Is(err, ErrResolution) {
		t.Errorf("ResolveAddr(.invalid) error = %v, want ErrResolution", err)
	}
}
