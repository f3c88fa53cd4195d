package shutdown

import (
	"sync"
	"time"
)

// IdleCoordinator fires once the server has had no live connection for a
// full timeout. The timer is armed while the count is zero; an increment
// disarms it and a decrement back to zero re-arms it from the start.
type IdleCoordinator struct {
	timeout time.Duration

	mu      sync.Mutex
	active  int
	timer   *time.Timer
	gen     uint64
	fired   bool
	stopped bool
	done    chan struct{}
}

// NewIdleCoordinator creates a coordinator whose timer starts armed.
// A timeout <= 0 never fires.
func NewIdleCoordinator(timeout time.Duration) *IdleCoordinator {
	c := &IdleCoordinator{
		timeout: timeout,
		done:    make(chan struct{}),
	}
	c.mu.Lock()
	c.arm()
	c.mu.Unlock()
	return c
}

// Increment records a new live connection. It returns false without
// counting the connection once the timeout has fired, in which case the
// caller should close it.
func (c *IdleCoordinator) Increment() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fired {
		return false
	}
	c.active++
	if c.active == 1 {
		c.disarm()
	}
	return true
}

// Decrement records a connection that ended. Extra calls are ignored.
func (c *IdleCoordinator) Decrement() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == 0 {
		return
	}
	c.active--
	if c.active == 0 {
		c.arm()
	}
}

// Active returns the live connection count.
func (c *IdleCoordinator) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Done is closed when the idle timeout fires. It never closes if the
// coordinator is stopped first or the timeout is not positive.
func (c *IdleCoordinator) Done() <-chan struct{} {
	return c.done
}

// Fired reports whether the idle timeout fired.
func (c *IdleCoordinator) Fired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fired
}

// Stop disarms the timer for good.
func (c *IdleCoordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	c.disarm()
}

// arm and disarm require c.mu.
func (c *IdleCoordinator) arm() {
	if c.timeout <= 0 || c.fired || c.stopped {
		return
	}
	c.gen++
	gen := c.gen
	c.timer = time.AfterFunc(c.timeout, func() { c.fire(gen) })
}

func (c *IdleCoordinator) disarm() {
	// A callback already in flight sees a stale generation and does nothing.
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *IdleCoordinator) fire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.active > 0 || c.fired || c.stopped {
		return
	}
	c.fired = true
	c.timer = nil
	close(c.done)
}
