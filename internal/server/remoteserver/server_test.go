package remoteserver

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yndnr/remotely/internal/core/domain"
	"github.com/yndnr/remotely/internal/infra/shutdown"
	"github.com/yndnr/remotely/internal/net/transport"
	"github.com/yndnr/remotely/internal/server/handler"
	"github.com/yndnr/remotely/internal/server/state"
	"github.com/yndnr/remotely/internal/telemetry/logger"
	"github.com/yndnr/remotely/internal/telemetry/metric"
)

func quietLogger(t *testing.T) logger.Logger {
	t.Helper()
	l, err := logger.New(logger.Config{Level: "error", Output: io.Discard})
	if err != nil {
		t.Fatalf("logger.New() error = %v", err)
	}
	return l
}

type fixture struct {
	srv     *Server
	key     *domain.SecretKey
	port    uint16
	metrics *metric.Registry
	serve   chan error
	cancel  context.CancelFunc
}

func startServer(t *testing.T, cfg *Config, h handler.Handler, idle *shutdown.IdleCoordinator) *fixture {
	t.Helper()
	key, err := domain.GenerateSecretKey()
	if err != nil {
		t.Fatalf("GenerateSecretKey() error = %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	m := metric.NewRegistry()
	srv := New(cfg, key, h, state.New(), WithLogger(quietLogger(t)), WithMetrics(m))
	ctx, cancel := context.WithCancel(context.Background())
	f := &fixture{
		srv:     srv,
		key:     key,
		port:    uint16(ln.Addr().(*net.TCPAddr).Port),
		metrics: m,
		serve:   make(chan error, 1),
		cancel:  cancel,
	}
	go func() { f.serve <- srv.Serve(ctx, ln, idle) }()

	t.Cleanup(func() {
		cancel()
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		srv.Shutdown(sctx)
	})
	return f
}

func (f *fixture) connect(t *testing.T, key *domain.SecretKey) (*transport.Transport, error) {
	t.Helper()
	sess, err := domain.NewSession("127.0.0.1", f.port, key)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return transport.Connect(ctx, sess, transport.Options{})
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

var okHandler = handler.HandlerFunc(func(ctx context.Context, _ string, _ *state.ServerState, req *domain.Request, out handler.Responder) error {
	return out.Send(ctx, domain.NewResponse(req.Tenant, req.ID, domain.ResponseData{Type: domain.ResOk}))
})

func TestServer_RequestResponse(t *testing.T) {
	f := startServer(t, nil, okHandler, nil)
	c, err := f.connect(t, f.key)
	if err != nil {
		t.Fatalf("connect error = %v", err)
	}
	defer c.Close()

	req := domain.NewRequest("t1", domain.RequestData{Type: domain.ReqSystemInfo})
	if err := c.Send(req); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	var resp domain.Response
	if ok, err := c.Receive(&resp); !ok || err != nil {
		t.Fatalf("Receive() = %v, %v", ok, err)
	}
	if resp.OriginID != req.ID || resp.Tenant != "t1" || resp.Payload[0].Type != domain.ResOk {
		t.Errorf("Receive() = %+v", resp)
	}

	conns := f.srv.Connections()
	if len(conns) != 1 || !conns[0].Encrypted || conns[0].Tag != c.ConnectionTag() {
		t.Errorf("Connections() = %+v", conns)
	}
}

// trackingHandler registers one fake process per client.
type fakeProc struct{ kills atomic.Int32 }

func (p *fakeProc) ID() uint64  { return 1 }
func (p *fakeProc) Kill() error { p.kills.Add(1); return nil }

func TestServer_CleanupExactlyOnce(t *testing.T) {
	proc := &fakeProc{}
	h := handler.HandlerFunc(func(ctx context.Context, clientID string, st *state.ServerState, req *domain.Request, out handler.Responder) error {
		st.WithClient(clientID, func(c *state.ClientState) error {
			c.TrackProcess(proc)
			return nil
		})
		return okHandler(ctx, clientID, st, req, out)
	})
	f := startServer(t, nil, h, nil)

	c, err := f.connect(t, f.key)
	if err != nil {
		t.Fatalf("connect error = %v", err)
	}
	c.Send(domain.NewRequest(""))
	var resp domain.Response
	if ok, err := c.Receive(&resp); !ok || err != nil {
		t.Fatalf("Receive() = %v, %v", ok, err)
	}
	if f.srv.State().Len() != 1 {
		t.Fatalf("State().Len() = %d, want 1", f.srv.State().Len())
	}

	c.Close()
	eventually(t, "client cleanup", func() bool { return f.srv.State().Len() == 0 })
	eventually(t, "connection removal", func() bool { return len(f.srv.Connections()) == 0 })
	if n := proc.kills.Load(); n != 1 {
		t.Errorf("Kill() calls = %d, want 1", n)
	}
}

func TestServer_MismatchedKey(t *testing.T) {
	f := startServer(t, nil, okHandler, nil)
	other, _ := domain.GenerateSecretKey()

	if _, err := f.connect(t, other); !errors.Is(err, domain.ErrHandshake) {
		t.Fatalf("connect with wrong key error = %v, want ErrHandshake", err)
	}
	eventually(t, "handshake failure metric", func() bool {
		return testCounter(f.metrics.HandshakeFailures) == 1
	})
	if f.srv.State().Len() != 0 {
		t.Error("failed handshake created client state")
	}

	// The server keeps serving.
	c, err := f.connect(t, f.key)
	if err != nil {
		t.Fatalf("connect after failure error = %v", err)
	}
	c.Close()
}

func TestServer_HandlerErrorEndsConnection(t *testing.T) {
	h := handler.HandlerFunc(func(context.Context, string, *state.ServerState, *domain.Request, handler.Responder) error {
		return domain.ErrHandler.WithDetails("boom")
	})
	f := startServer(t, nil, h, nil)

	c, err := f.connect(t, f.key)
	if err != nil {
		t.Fatalf("connect error = %v", err)
	}
	defer c.Close()
	c.Send(domain.NewRequest(""))

	var resp domain.Response
	if ok, err := c.Receive(&resp); ok || err != nil {
		t.Errorf("Receive() = %v, %v; want clean EOF", ok, err)
	}
	eventually(t, "handler error metric", func() bool { return testCounter(f.metrics.HandlerErrors) == 1 })
}

func TestServer_BackgroundSenderKeepsQueueOpen(t *testing.T) {
	h := handler.HandlerFunc(func(ctx context.Context, _ string, _ *state.ServerState, req *domain.Request, out handler.Responder) error {
		release, err := out.Retain()
		if err != nil {
			return err
		}
		go func() {
			defer release()
			for i := 0; i < 3; i++ {
				time.Sleep(10 * time.Millisecond)
				out.Send(ctx, domain.NewResponse("", req.ID, domain.ResponseData{Type: domain.ResProcStdout, Text: "x"}))
			}
		}()
		return nil
	})
	f := startServer(t, nil, h, nil)

	c, err := f.connect(t, f.key)
	if err != nil {
		t.Fatalf("connect error = %v", err)
	}
	defer c.Close()
	c.Send(domain.NewRequest(""))

	for i := 0; i < 3; i++ {
		var resp domain.Response
		if ok, err := c.Receive(&resp); !ok || err != nil {
			t.Fatalf("Receive(%d) = %v, %v", i, ok, err)
		}
	}
}

func TestServer_IdleShutdown(t *testing.T) {
	idle := shutdown.NewIdleCoordinator(100 * time.Millisecond)
	f := startServer(t, nil, okHandler, idle)

	select {
	case err := <-f.serve:
		if err != nil {
			t.Fatalf("Serve() error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not stop after the idle timeout")
	}
	if _, err := f.connect(t, f.key); err == nil {
		t.Error("listener still accepting after idle shutdown")
	}
}

func TestServer_IdleHeldByConnection(t *testing.T) {
	idle := shutdown.NewIdleCoordinator(100 * time.Millisecond)
	f := startServer(t, nil, okHandler, idle)

	c, err := f.connect(t, f.key)
	if err != nil {
		t.Fatalf("connect error = %v", err)
	}

	select {
	case err := <-f.serve:
		t.Fatalf("Serve() returned %v while a client was connected", err)
	case <-time.After(300 * time.Millisecond):
	}
	if idle.Active() != 1 {
		t.Errorf("Active() = %d, want 1", idle.Active())
	}

	c.Close()
	select {
	case err := <-f.serve:
		if err != nil {
			t.Fatalf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not stop after the client left")
	}
}

func TestServer_ContextCancel(t *testing.T) {
	f := startServer(t, nil, okHandler, nil)
	f.cancel()
	select {
	case err := <-f.serve:
		if err != nil {
			t.Fatalf("Serve() error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not stop on cancel")
	}
}

type failingListener struct {
	net.Listener
}

func (failingListener) Accept() (net.Conn, error) {
	return nil, errors.New("accept: too many open files")
}

func TestServer_ListenerFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	srv := New(nil, nil, okHandler, nil, WithLogger(quietLogger(t)))
	err = srv.Serve(context.Background(), failingListener{ln}, nil)
	if !errors.Is(err, domain.ErrListener) {
		t.Errorf("Serve() error = %v, want ErrListener", err)
	}
}

func TestServer_RateLimited(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit = 0.001
	cfg.RateBurst = 1
	f := startServer(t, cfg, okHandler, nil)

	c, err := f.connect(t, f.key)
	if err != nil {
		t.Fatalf("first connect error = %v", err)
	}
	defer c.Close()

	if _, err := f.connect(t, f.key); err == nil {
		t.Fatal("second connect should be rejected")
	}
	eventually(t, "rejection metric", func() bool {
		return testCounter(f.metrics.ConnectionsRejected.WithLabelValues("rate_limited")) == 1
	})
}

func TestServer_ShutdownClosesConnections(t *testing.T) {
	f := startServer(t, nil, okHandler, nil)
	c, err := f.connect(t, f.key)
	if err != nil {
		t.Fatalf("connect error = %v", err)
	}
	defer c.Close()
	eventually(t, "registered connection", func() bool { return len(f.srv.Connections()) == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	var resp domain.Response
	if ok, _ := c.Receive(&resp); ok {
		t.Error("Receive() succeeded after shutdown")
	}
}

func TestServer_SendFailureDropsConnection(t *testing.T) {
	h := handler.HandlerFunc(func(ctx context.Context, _ string, _ *state.ServerState, req *domain.Request, out handler.Responder) error {
		return out.Send(ctx, domain.NewResponse(req.Tenant, req.ID, domain.ResponseData{Type: domain.ResBlob, Data: make([]byte, 4096)}))
	})
	cfg := DefaultConfig()
	cfg.MaxFrameSize = 1 << 10
	f := startServer(t, cfg, h, nil)

	c, err := f.connect(t, f.key)
	if err != nil {
		t.Fatalf("connect error = %v", err)
	}
	defer c.Close()
	if err := c.Send(domain.NewRequest("")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	got := make(chan bool, 1)
	go func() {
		var resp domain.Response
		ok, _ := c.Receive(&resp)
		got <- ok
	}()
	select {
	case ok := <-got:
		if ok {
			t.Error("Receive() returned a response larger than the frame limit")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("connection stayed open after a failed send")
	}
	eventually(t, "connection unregistered", func() bool { return len(f.srv.Connections()) == 0 })
}
