package httpserver

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"

	"github.com/yndnr/remotely/internal/telemetry/logger"
)

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.HasPrefix(seen, "req-") {
		t.Errorf("generated request id = %q, want req- prefix", seen)
	}
	if rec.Header().Get("X-Request-ID") != seen {
		t.Errorf("header = %q, context = %q", rec.Header().Get("X-Request-ID"), seen)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "given")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "given" {
		t.Errorf("request id = %q, want caller supplied id", seen)
	}
}

func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mark("first"), mark("second"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if strings.Join(order, ",") != "first,second,handler" {
		t.Errorf("order = %v", order)
	}
}

func TestRecover(t *testing.T) {
	h := Recover(quietLogger(t))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	log, err := logger.New(logger.Config{Level: "debug", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("logger.New() error = %v", err)
	}

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), RequestID(), AccessLog(log))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/brew", nil))

	out := buf.String()
	for _, want := range []string{`"status":418`, `"path":"/brew"`, "http request rejected"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %s", out, want)
		}
	}
}

func TestNetworkACL(t *testing.T) {
	tests := []struct {
		name      string
		allowList []string
		remote    string
		allowed   bool
	}{
		{"no restriction", nil, "8.8.8.8:1", true},
		{"single ip", []string{"127.0.0.1"}, "127.0.0.1:1", true},
		{"single ip miss", []string{"127.0.0.1"}, "127.0.0.2:1", false},
		{"cidr", []string{"192.168.0.0/16"}, "192.168.4.4:1", true},
		{"ipv6", []string{"::1"}, "[::1]:1", true},
		{"mapped ipv4", []string{"10.0.0.0/8"}, "[::ffff:10.1.2.3]:1", true},
		{"unparsable peer", []string{"10.0.0.0/8"}, "pipe", false},
		{"only invalid entries", []string{"not-an-ip", "10.0.0.0/99"}, "10.0.0.1:1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, _ := ParseAllowList(tt.allowList)
			h := NetworkACL(list, quietLogger(t))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if got := rec.Code == http.StatusOK; got != tt.allowed {
				t.Errorf("allowed = %v (status %d), want %v", got, rec.Code, tt.allowed)
			}
		})
	}
}

func TestPeerIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	if ip := peerIP(req); ip != "10.0.0.1" {
		t.Errorf("peerIP() = %q, want peer address", ip)
	}
}

func TestParseAllowList(t *testing.T) {
	list, err := ParseAllowList([]string{"10.0.0.1", " 192.168.1.7/16 ", "bogus"})
	if err == nil || !strings.Contains(err.Error(), "bogus") {
		t.Errorf("ParseAllowList() error = %v, want one naming the bad entry", err)
	}
	if len(list.prefixes) != 2 {
		t.Fatalf("prefixes = %v, want 2", list.prefixes)
	}
	if list.prefixes[1].String() != "192.168.0.0/16" {
		t.Errorf("prefix = %s, want masked 192.168.0.0/16", list.prefixes[1])
	}

	var open *AllowList
	if !open.Allows(netip.MustParseAddr("8.8.8.8")) {
		t.Error("nil AllowList should allow everyone")
	}
}
