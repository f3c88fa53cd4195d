// Package state holds what the server knows about each connected client.
//
// All clients share one ServerState guarded by a single mutex. Callbacks run
// under that mutex, so they must be short and must never block on I/O.
package state

import (
	"sort"
	"sync"
	"time"
)

// Process is a child process a client started.
type Process interface {
	ID() uint64
	Kill() error
}

// ClientState is the per-client record. It is only touched through
// ServerState.WithClient, which holds the server mutex.
type ClientState struct {
	ConnectedAt time.Time
	Requests    uint64

	processes  map[uint64]Process
	nextProcID uint64
}

func newClientState() *ClientState {
	return &ClientState{
		ConnectedAt: time.Now(),
		processes:   make(map[uint64]Process),
	}
}

// NextProcessID allocates a process id unique within this client.
func (c *ClientState) NextProcessID() uint64 {
	c.nextProcID++
	return c.nextProcID
}

// TrackProcess records p so that it is killed when the client goes away.
func (c *ClientState) TrackProcess(p Process) {
	c.processes[p.ID()] = p
}

// UntrackProcess forgets the process with id and returns it.
func (c *ClientState) UntrackProcess(id uint64) (Process, bool) {
	p, ok := c.processes[id]
	if ok {
		delete(c.processes, id)
	}
	return p, ok
}

// Process returns the tracked process with id.
func (c *ClientState) Process(id uint64) (Process, bool) {
	p, ok := c.processes[id]
	return p, ok
}

// ProcessIDs lists tracked process ids in ascending order.
func (c *ClientState) ProcessIDs() []uint64 {
	ids := make([]uint64, 0, len(c.processes))
	for id := range c.processes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ClientInfo is a point-in-time copy of a ClientState, safe to hand out.
type ClientInfo struct {
	ID          string    `json:"id" yaml:"id"`
	ConnectedAt time.Time `json:"connected_at" yaml:"connected_at"`
	Requests    uint64    `json:"requests" yaml:"requests"`
	Processes   int       `json:"processes" yaml:"processes"`
}

// ServerState maps client ids to their state.
type ServerState struct {
	mu      sync.Mutex
	clients map[string]*ClientState
}

// New creates an empty ServerState.
func New() *ServerState {
	return &ServerState{clients: make(map[string]*ClientState)}
}

// WithClient runs fn on the state for id, creating it first if needed.
// fn runs under the server mutex.
func (s *ServerState) WithClient(id string, fn func(*ClientState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clients[id]
	if !ok {
		c = newClientState()
		s.clients[id] = c
	}
	return fn(c)
}

// WithExistingClient is WithClient without the create step. It reports
// whether state for id existed.
func (s *ServerState) WithExistingClient(id string, fn func(*ClientState) error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clients[id]
	if !ok {
		return false, nil
	}
	return true, fn(c)
}

// CleanupClient drops the state for id and kills its processes. Kills happen
// after the mutex is released. Calling it for an unknown id is a no-op.
func (s *ServerState) CleanupClient(id string) []error {
	s.mu.Lock()
	c, ok := s.clients[id]
	delete(s.clients, id)
	s.mu.Unlock()

	if !ok {
		return nil
	}

	var errs []error
	for _, pid := range c.ProcessIDs() {
		if err := c.processes[pid].Kill(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Has reports whether state exists for id.
func (s *ServerState) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.clients[id]
	return ok
}

// Len returns the number of clients with state.
func (s *ServerState) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// ClientCount is Len under the name metric collectors expect.
func (s *ServerState) ClientCount() int {
	return s.Len()
}

// ProcessCount returns the number of processes tracked across all clients.
func (s *ServerState) ProcessCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.clients {
		n += len(c.processes)
	}
	return n
}

// Clients returns a snapshot of every client, ordered by id.
func (s *ServerState) Clients() []ClientInfo {
	s.mu.Lock()
	out := make([]ClientInfo, 0, len(s.clients))
	for id, c := range s.clients {
		out = append(out, ClientInfo{
			ID:          id,
			ConnectedAt: c.ConnectedAt,
			Requests:    c.Requests,
			Processes:   len(c.processes),
		})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
