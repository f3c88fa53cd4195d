package remoteserver

import (
	"context"
	"sync"

	"github.com/yndnr/remotely/internal/core/domain"
)

// responseQueue is a bounded channel of responses with reference-counted
// senders. The request loop holds the first sender; background tasks retain
// more. The channel closes when the last sender is released, which lets the
// response loop finish after draining.
type responseQueue struct {
	ch   chan *domain.Response
	done chan struct{}

	mu      sync.Mutex
	senders int
	closed  bool

	stalled func()
}

func newResponseQueue(capacity int) *responseQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &responseQueue{
		ch:      make(chan *domain.Response, capacity),
		done:    make(chan struct{}),
		senders: 1,
	}
}

// Send implements handler.Responder.
func (q *responseQueue) Send(ctx context.Context, resp *domain.Response) error {
	select {
	case <-q.done:
		return domain.ErrQueueClosed
	default:
	}

	select {
	case q.ch <- resp:
		return nil
	default:
		if q.stalled != nil {
			q.stalled()
		}
	}

	select {
	case q.ch <- resp:
		return nil
	case <-q.done:
		return domain.ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Retain implements handler.Responder.
func (q *responseQueue) Retain() (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, domain.ErrQueueClosed
	}
	q.senders++

	var once sync.Once
	return func() { once.Do(q.release) }, nil
}

// release drops one sender and closes the channel after the last.
func (q *responseQueue) release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.senders--
	if q.senders == 0 {
		q.closed = true
		close(q.ch)
	}
}

// abandon is called by the response loop when it stops consuming. Blocked
// and future producers get ErrQueueClosed.
func (q *responseQueue) abandon() {
	close(q.done)
}
