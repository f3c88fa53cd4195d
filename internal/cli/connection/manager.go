package connection

import (
	"context"
	"errors"
	"sync"

	"github.com/yndnr/remotely/internal/client"
	"github.com/yndnr/remotely/internal/core/domain"
)

// ErrNotConnected is returned when no connection is open.
var ErrNotConnected = errors.New("not connected")

// watchBuffer is the capacity of each Watch channel.
const watchBuffer = 256

// Connection describes the server a Manager is connected to.
type Connection struct {
	Name    string
	Session *domain.Session
}

// Manager owns the connection to one server. It routes unsolicited
// responses to the watcher registered for their OriginID and hands the
// rest to the background sink.
type Manager struct {
	mu         sync.Mutex
	current    *Connection
	client     *client.Client
	watchers   map[uint64]*watcher
	background func(*domain.Response)

	// routed closes when the current route goroutine exits. ended is set
	// to it once its watchers are closed.
	routed chan struct{}
	ended  chan struct{}
}

type watcher struct {
	ch   chan *domain.Response
	done chan struct{}
}

// NewManager creates a new connection manager.
func NewManager() *Manager {
	return &Manager{watchers: make(map[uint64]*watcher)}
}

// SetBackground sets the sink for responses nobody watches. Nil drops them.
func (m *Manager) SetBackground(fn func(*domain.Response)) {
	m.mu.Lock()
	m.background = fn
	m.mu.Unlock()
}

// Connect dials conn and makes it current, closing any previous connection.
func (m *Manager) Connect(ctx context.Context, conn *Connection, opts client.Options) error {
	c, err := client.Dial(ctx, conn.Session, opts)
	if err != nil {
		return err
	}
	m.Attach(conn, c)
	return nil
}

// Attach makes an already connected client current. The manager owns c.
func (m *Manager) Attach(conn *Connection, c *client.Client) {
	_ = m.Disconnect()

	routed := make(chan struct{})
	m.mu.Lock()
	m.current = conn
	m.client = c
	m.routed = routed
	m.mu.Unlock()

	go m.route(c, routed)
}

// Disconnect closes the current connection, if any.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	c, routed := m.client, m.routed
	m.current, m.client, m.routed = nil, nil, nil
	m.mu.Unlock()

	if c == nil {
		return nil
	}
	err := c.Close()
	<-routed
	return err
}

// Current returns the current connection.
func (m *Manager) Current() *Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// IsConnected reports whether a connection is open and alive.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	c := m.client
	m.mu.Unlock()
	if c == nil {
		return false
	}
	select {
	case <-c.Done():
		return false
	default:
		return true
	}
}

// Client returns the current client.
func (m *Manager) Client() (*client.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil, ErrNotConnected
	}
	return m.client, nil
}

// Watch routes responses whose OriginID is origin to the returned channel
// until stop is called. The channel is closed when the connection ends.
// Register before sending the request so no response is missed.
func (m *Manager) Watch(origin uint64) (<-chan *domain.Response, func()) {
	w := &watcher{
		ch:   make(chan *domain.Response, watchBuffer),
		done: make(chan struct{}),
	}
	m.mu.Lock()
	live := m.routed != nil && m.ended != m.routed
	if live {
		m.watchers[origin] = w
	}
	m.mu.Unlock()
	if !live {
		close(w.ch)
	}

	var once sync.Once
	return w.ch, func() {
		once.Do(func() {
			m.mu.Lock()
			if m.watchers[origin] == w {
				delete(m.watchers, origin)
			}
			m.mu.Unlock()
			close(w.done)
		})
	}
}

func (m *Manager) route(c *client.Client, routed chan struct{}) {
	defer close(routed)
	defer m.closeWatchers(routed)

	for resp := range c.Subscribe() {
		m.mu.Lock()
		w := m.watchers[resp.OriginID]
		bg := m.background
		m.mu.Unlock()

		if w == nil {
			if bg != nil {
				bg(resp)
			}
			continue
		}
		select {
		case w.ch <- resp:
		case <-w.done:
		}
	}
}

func (m *Manager) closeWatchers(routed chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ended = routed
	for origin, w := range m.watchers {
		close(w.ch)
		delete(m.watchers, origin)
	}
}
