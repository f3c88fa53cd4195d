// Package client talks to a remotely server over an established transport.
//
// One goroutine reads every response off the connection. A response whose
// OriginID matches a pending Send completes that call; everything else, such
// as the output of a process a request started, goes to the Subscribe
// channel.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/yndnr/remotely/internal/core/domain"
	"github.com/yndnr/remotely/internal/net/transport"
	"github.com/yndnr/remotely/internal/telemetry/logger"
)

// DefaultEventBuffer is the Subscribe channel capacity.
const DefaultEventBuffer = 1024

// ErrClosed is returned by calls on a closed client.
var ErrClosed = errors.New("client closed")

// Options configures a Client.
type Options struct {
	Transport transport.Options

	// Tenant names this client in requests built by Do. Defaults to the
	// host name.
	Tenant string

	// EventBuffer is the Subscribe channel capacity (default 1024). Events
	// that do not fit are dropped.
	EventBuffer int

	Logger logger.Logger
}

// Client is a connection to a server. It is safe for concurrent use.
type Client struct {
	t      *transport.Transport
	w      *transport.WriteHalf
	tenant string
	log    logger.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uint64]chan *domain.Response
	err     error

	events  chan *domain.Response
	dropped atomic.Uint64
	closing atomic.Bool
	done    chan struct{}
}

// Dial connects and handshakes with the server described by sess.
func Dial(ctx context.Context, sess *domain.Session, opts Options) (*Client, error) {
	if opts.Transport.Logger == nil {
		opts.Transport.Logger = opts.Logger
	}
	t, err := transport.Connect(ctx, sess, opts.Transport)
	if err != nil {
		return nil, err
	}
	return New(t, opts), nil
}

// New wraps an established connector-side transport. The client owns t from
// here on.
func New(t *transport.Transport, opts Options) *Client {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	if opts.Tenant == "" {
		opts.Tenant, _ = os.Hostname()
	}

	r, w := t.IntoSplit()
	c := &Client{
		t:       t,
		w:       w,
		tenant:  opts.Tenant,
		log:     opts.Logger.With("conn_tag", t.ConnectionTag()),
		pending: make(map[uint64]chan *domain.Response),
		events:  make(chan *domain.Response, opts.EventBuffer),
		done:    make(chan struct{}),
	}
	go c.readLoop(r)
	return c
}

// Send writes req and waits for the response whose OriginID is req.ID.
func (c *Client) Send(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	ch := make(chan *domain.Response, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	if _, dup := c.pending[req.ID]; dup {
		c.mu.Unlock()
		return nil, fmt.Errorf("request %d already pending", req.ID)
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	err := c.w.Send(req)
	c.writeMu.Unlock()
	if err != nil {
		return nil, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-c.done:
		// The reader may have delivered right before stopping.
		select {
		case resp := <-ch:
			return resp, nil
		default:
		}
		return nil, c.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RemoteError is an error entry returned by the server.
type RemoteError struct {
	Kind        string
	Description string
}

func (e *RemoteError) Error() string {
	if e.Kind == "" {
		return e.Description
	}
	return e.Kind + ": " + e.Description
}

// EntryError returns the entry as a *RemoteError when it is an error entry,
// and nil otherwise.
func EntryError(d domain.ResponseData) error {
	if d.Type != domain.ResError {
		return nil
	}
	return &RemoteError{Kind: d.Kind, Description: d.Description}
}

// NewRequest builds a request carrying this client's tenant. Callers that
// must know the id before sending, to watch for its process output, build
// the request here and pass it to Send.
func (c *Client) NewRequest(payload ...domain.RequestData) *domain.Request {
	return domain.NewRequest(c.tenant, payload...)
}

// Do sends one request built from payload and returns the response payload.
// Error entries are returned in place; use EntryError to inspect them.
func (c *Client) Do(ctx context.Context, payload ...domain.RequestData) ([]domain.ResponseData, error) {
	resp, err := c.Send(ctx, c.NewRequest(payload...))
	if err != nil {
		return nil, err
	}
	if len(resp.Payload) != len(payload) {
		return nil, domain.ErrDeserialize.WithDetails(
			fmt.Sprintf("response has %d entries for %d requested", len(resp.Payload), len(payload)))
	}
	return resp.Payload, nil
}

// Subscribe returns the channel of responses no Send was waiting for. It is
// closed when the connection ends.
func (c *Client) Subscribe() <-chan *domain.Response {
	return c.events
}

// Dropped returns how many unsolicited responses were discarded because the
// Subscribe channel was full.
func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}

// Done is closed once the connection has ended.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, or nil while it is up.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// ConnectionTag identifies this connection in logs on both ends.
func (c *Client) ConnectionTag() string {
	return c.t.ConnectionTag()
}

// Encrypted reports whether frames are encrypted.
func (c *Client) Encrypted() bool {
	return c.t.Encrypted()
}

// CloseWrite tells the server no more requests follow. Responses keep
// arriving until the server has answered everything.
func (c *Client) CloseWrite() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.w.Close()
}

// Close closes the connection and waits for the reader to stop.
func (c *Client) Close() error {
	c.closing.Store(true)
	err := c.t.Close()
	<-c.done
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

func (c *Client) readLoop(r *transport.ReadHalf) {
	var err error
	defer func() {
		if err == nil || c.closing.Load() {
			err = ErrClosed
		}
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.events)
		close(c.done)
	}()

	for {
		var resp domain.Response
		ok, rerr := r.Receive(&resp)
		if rerr != nil {
			err = rerr
			return
		}
		if !ok {
			return
		}

		c.mu.Lock()
		ch, waiting := c.pending[resp.OriginID]
		if waiting {
			delete(c.pending, resp.OriginID)
		}
		c.mu.Unlock()

		if waiting {
			ch <- &resp
			continue
		}
		select {
		case c.events <- &resp:
		default:
			c.dropped.Add(1)
			c.log.Warn("dropping unsolicited response", "origin_id", resp.OriginID, "types", resp.PayloadTypeString())
		}
	}
}
