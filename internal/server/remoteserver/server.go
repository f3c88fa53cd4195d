package remoteserver

import (
	"context"
	"errors"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/remotely/internal/core/domain"
	"github.com/yndnr/remotely/internal/infra/shutdown"
	"github.com/yndnr/remotely/internal/net/transport"
	"github.com/yndnr/remotely/internal/server/handler"
	"github.com/yndnr/remotely/internal/server/state"
	"github.com/yndnr/remotely/internal/telemetry/logger"
	"github.com/yndnr/remotely/internal/telemetry/metric"
	"github.com/yndnr/remotely/pkg/cmap"
	"github.com/yndnr/remotely/pkg/crypto/adaptive"
)

// Config holds the remote server configuration.
type Config struct {
	// MaxMsgCapacity bounds each connection's response queue (default: 100).
	MaxMsgCapacity int
	// MaxFrameSize bounds one decoded frame (default: 16 MiB).
	MaxFrameSize int
	// HandshakeTimeout bounds the handshake of each connection (default: 10s).
	HandshakeTimeout time.Duration
	// Cipher forces the AEAD offered to clients. Empty means automatic.
	Cipher adaptive.CipherType
	// RateLimit is the number of new connections per second allowed from one
	// IP. Zero disables limiting.
	RateLimit float64
	// RateBurst is the bucket size for RateLimit.
	RateBurst int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxMsgCapacity:   100,
		MaxFrameSize:     16 << 20,
		HandshakeTimeout: 10 * time.Second,
		Cipher:           adaptive.CipherAuto,
		RateLimit:        20,
		RateBurst:        40,
	}
}

const limiterPruneInterval = time.Minute

// Server accepts clients and runs their request/response loops.
type Server struct {
	cfg     *Config
	key     *domain.SecretKey
	handler handler.Handler
	state   *state.ServerState
	logger  logger.Logger
	metrics *metric.Registry

	limiter *acceptLimiter
	conns   *cmap.Map[string, *connEntry]

	mu      sync.Mutex
	ln      net.Listener
	running atomic.Bool
	wg      sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMetrics sets the metric registry.
func WithMetrics(m *metric.Registry) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// New creates a server. key may be nil to run without encryption, which
// only clients without a key can use.
func New(cfg *Config, key *domain.SecretKey, h handler.Handler, st *state.ServerState, opts ...Option) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if st == nil {
		st = state.New()
	}

	s := &Server{
		cfg:     cfg,
		key:     key,
		handler: h,
		state:   st,
		logger:  logger.Default(),
		limiter: newAcceptLimiter(cfg.RateLimit, cfg.RateBurst),
		conns:   cmap.New[string, *connEntry](),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metric.NewRegistry()
	}
	return s
}

// State returns the shared client state.
func (s *Server) State() *state.ServerState {
	return s.state
}

// Addr returns the listener address once Serve has started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Connections lists live connections, oldest first.
func (s *Server) Connections() []ConnInfo {
	entries := s.conns.Values()
	out := make([]ConnInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Serve accepts connections on ln until ctx is done, idle fires or the
// listener fails. It returns nil for the first two and a domain.ErrListener
// for the last. idle may be nil.
func (s *Server) Serve(ctx context.Context, ln net.Listener, idle *shutdown.IdleCoordinator) error {
	if idle == nil {
		idle = shutdown.NewIdleCoordinator(0)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.running.Store(true)

	s.logger.Info("remote server listening", "address", ln.Addr().String(), "encrypted", s.key != nil)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(limiterPruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-idle.Done():
				s.logger.Warn("no connections within idle timeout, shutting down")
				_ = ln.Close()
				return
			case <-ctx.Done():
				_ = ln.Close()
				return
			case <-ticker.C:
				s.limiter.Prune()
			case <-stop:
				return
			}
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if idle.Fired() || ctx.Err() != nil || !s.running.Load() {
				return nil
			}
			s.logger.Error("listener failed", "error", err)
			return domain.ErrListener.WithCause(err)
		}

		if !s.limiter.Allow(conn.RemoteAddr()) {
			s.logger.Warn("connection rate limited", "client", conn.RemoteAddr().String())
			s.metrics.RecordRejected("rate_limited")
			_ = conn.Close()
			continue
		}

		if !idle.Increment() {
			// The idle timeout fired between Accept and here.
			_ = conn.Close()
			_ = ln.Close()
			return nil
		}
		s.metrics.ConnectionsAccepted.Inc()
		s.metrics.ConnectionsActive.Inc()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.metrics.ConnectionsActive.Dec()
			defer idle.Decrement()
			s.serveConn(ctx, conn)
		}()
	}
}

// Shutdown closes the listener and every live connection, then waits for
// the connection goroutines until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.running.Store(false)

	var firstErr error
	s.mu.Lock()
	if s.ln != nil {
		if err := s.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			firstErr = err
		}
	}
	s.mu.Unlock()

	s.conns.Range(func(_ string, e *connEntry) bool {
		_ = e.conn.Close()
		return true
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return firstErr
}

func (s *Server) serveConn(ctx context.Context, raw net.Conn) {
	clientID := raw.RemoteAddr().String()
	connID := ulid.Make().String()
	log := s.logger.With("client", clientID, "conn_id", connID)

	conn := &meteredConn{Conn: raw, rx: s.metrics.BytesReceived, tx: s.metrics.BytesSent}
	entry := &connEntry{
		info: ConnInfo{ID: connID, Client: clientID, Since: time.Now()},
		conn: conn,
	}
	s.conns.Set(connID, entry)
	defer s.conns.Delete(connID)

	hctx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	t, err := transport.FromHandshake(hctx, conn, transport.RoleListener, s.key, transport.Options{
		MaxFrameSize: s.cfg.MaxFrameSize,
		Cipher:       s.cfg.Cipher,
		Logger:       log,
	})
	cancel()
	if err != nil {
		log.Error("handshake failed", "error", err, "code", domain.CodeOf(err))
		s.metrics.HandshakeFailures.Inc()
		return
	}
	defer t.Close()

	info := entry.info
	info.Encrypted = t.Encrypted()
	info.Tag = t.ConnectionTag()
	s.conns.Set(connID, &connEntry{info: info, conn: conn})

	log = log.With("conn_tag", t.ConnectionTag())
	log.Info("client connected", "encrypted", t.Encrypted())

	connCtx, cancelConn := context.WithCancel(logger.WithLogger(ctx, log))
	defer cancelConn()

	r, w := t.IntoSplit()
	q := newResponseQueue(s.cfg.MaxMsgCapacity)
	q.stalled = s.metrics.QueueStalls.Inc

	responsesDone := make(chan struct{})
	go func() {
		defer close(responsesDone)
		s.responseLoop(log, w, q, func() { _ = conn.Close() })
	}()

	s.requestLoop(connCtx, log, clientID, r, q)

	for _, err := range s.state.CleanupClient(clientID) {
		log.Warn("failed to stop client process", "error", err)
	}
	cancelConn()
	<-responsesDone
	log.Info("client disconnected")
}

// requestLoop owns the queue's first sender and releases it on return.
func (s *Server) requestLoop(ctx context.Context, log logger.Logger, clientID string, r *transport.ReadHalf, q *responseQueue) {
	defer q.release()

	for {
		var req domain.Request
		ok, err := r.Receive(&req)
		if err != nil {
			log.Error("receive failed", "error", err, "code", domain.CodeOf(err))
			return
		}
		if !ok {
			log.Info("client closed connection")
			return
		}

		log.Debug("received request", "id", req.ID, "types", req.PayloadTypeString())
		for _, p := range req.Payload {
			s.metrics.RecordRequest(string(p.Type))
		}
		_ = s.state.WithClient(clientID, func(c *state.ClientState) error {
			c.Requests++
			return nil
		})

		if err := s.handler.Process(logger.WithRequestID(ctx, req.ID), clientID, s.state, &req, q); err != nil {
			log.Error("request processing failed", "id", req.ID, "error", err)
			s.metrics.HandlerErrors.Inc()
			return
		}
	}
}

// responseLoop drains q until it closes or a write fails. A failed write
// leaves the stream in an unknown state, so drop closes the connection,
// which also ends the request loop. The queue is abandoned so blocked
// producers are released.
func (s *Server) responseLoop(log logger.Logger, w *transport.WriteHalf, q *responseQueue, drop func()) {
	defer q.abandon()

	for resp := range q.ch {
		if err := w.Send(resp); err != nil {
			log.Error("send failed, dropping connection", "origin_id", resp.OriginID, "error", err, "code", domain.CodeOf(err))
			drop()
			return
		}
		s.metrics.ResponsesTotal.Inc()
	}
	_ = w.Close()
}
