package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/remotely/internal/telemetry/logger"
)

// Middleware decorates a handler.
type Middleware func(http.Handler) http.Handler

// Chain wraps h so that middlewares run in the order given.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

type requestIDKey struct{}

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID tags each request with the caller's X-Request-ID or a new ULID.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = "req-" + ulid.Make().String()
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		})
	}
}

// RequestIDFrom returns the id set by RequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// AccessLog records each completed request. Scrapes that succeed are logged
// at debug so a busy Prometheus does not flood the log.
func AccessLog(log logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			l := log.With(
				"request_id", RequestIDFrom(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"bytes", rec.written,
				"duration", time.Since(start),
				"client_ip", peerIP(r),
			)
			switch {
			case rec.status >= 500:
				l.Error("http request failed")
			case rec.status >= 400:
				l.Warn("http request rejected")
			default:
				l.Debug("http request served")
			}
		})
	}
}

// Recover turns a handler panic into a 500 reply.
func Recover(log logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					log.Error("http handler panicked",
						"request_id", RequestIDFrom(r.Context()),
						"path", r.URL.Path,
						"panic", fmt.Sprint(v),
					)
					writeJSON(w, http.StatusInternalServerError, errorBody{Message: "internal server error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// AllowList is a set of permitted client addresses. A zero AllowList with
// restricted unset permits everyone.
type AllowList struct {
	prefixes   []netip.Prefix
	restricted bool
}

// ParseAllowList reads IP and CIDR entries. Invalid entries are reported in
// the error and left out of the list, which stays restricted so that a
// typo never opens the endpoint.
func ParseAllowList(entries []string) (*AllowList, error) {
	list := &AllowList{restricted: len(entries) > 0}
	var errs []error
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		var (
			p   netip.Prefix
			err error
		)
		if strings.Contains(entry, "/") {
			p, err = netip.ParsePrefix(entry)
			p = p.Masked()
		} else {
			var addr netip.Addr
			if addr, err = netip.ParseAddr(entry); err == nil {
				p = netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen())
			}
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("allow list entry %q: %w", entry, err))
			continue
		}
		list.prefixes = append(list.prefixes, p)
	}
	return list, errors.Join(errs...)
}

// Allows reports whether addr may call the endpoint.
func (l *AllowList) Allows(addr netip.Addr) bool {
	if l == nil || !l.restricted {
		return true
	}
	addr = addr.Unmap()
	for _, p := range l.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// NetworkACL rejects callers that list does not allow with 403.
func NetworkACL(list *AllowList, log logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := peerIP(r)
			addr, err := netip.ParseAddr(ip)
			if err == nil && list.Allows(addr) {
				next.ServeHTTP(w, r)
				return
			}
			log.Warn("http request denied by allow list", "client_ip", ip, "path", r.URL.Path)
			writeJSON(w, http.StatusForbidden, errorBody{Message: "address not allowed"})
		})
	}
}

type errorBody struct {
	Message string `json:"message"`
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.written += int64(n)
	return n, err
}

// peerIP is the TCP peer. Forwarding headers are ignored because the
// endpoint is not meant to sit behind a proxy.
func peerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
