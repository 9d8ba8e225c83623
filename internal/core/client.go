package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// ConnState is the liveness state of a connection.
type ConnState int32

const (
	StateOpen ConnState = iota
	StateClosing
	StateClosed
)

// Conn is a live client connection as seen by the core layer. Conn records
// are owned exclusively by the Registry and addressed by opaque string
// handles; the subscription set is guarded by the Registry's lock.
type Conn struct {
	ID       string
	UserID   int64
	Username string

	rooms map[int64]struct{}
	out   *outbox

	state      atomic.Int32
	lastActive atomic.Int64
}

func newConn(id string, userID int64, username string, outboxSize int) *Conn {
	c := &Conn{
		ID:       id,
		UserID:   userID,
		Username: username,
		rooms:    make(map[int64]struct{}),
		out:      newOutbox(outboxSize),
	}
	c.Touch()
	return c
}

// State returns the connection liveness state.
func (c *Conn) State() ConnState {
	return ConnState(c.state.Load())
}

// Touch records inbound activity, deferring the idle sweep.
func (c *Conn) Touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

// LastActive returns the time of the most recent inbound activity.
func (c *Conn) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

// Send enqueues an event onto the outbound queue, applying the
// slow-consumer policy. It never blocks. The return value is false only
// when a critical event could not be admitted; the caller is expected to
// tear the connection down.
func (c *Conn) Send(ev *Event) bool {
	return c.out.push(ev)
}

// Next blocks until an outbound event is available or the queue is released.
// After close it drains the remaining buffered events before reporting false.
func (c *Conn) Next(ctx context.Context) (*Event, bool) {
	return c.out.next(ctx)
}

// outbox is the bounded per-connection outbound queue. When full, the oldest
// non-critical event is evicted to admit a critical one; non-critical
// arrivals are dropped outright.
type outbox struct {
	mu     sync.Mutex
	buf    []*Event
	cap    int
	ready  chan struct{}
	closed bool
}

func newOutbox(capacity int) *outbox {
	if capacity <= 0 {
		capacity = 64
	}
	return &outbox{
		cap:   capacity,
		ready: make(chan struct{}, 1),
	}
}

func (o *outbox) push(ev *Event) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return true
	}

	if len(o.buf) < o.cap {
		o.buf = append(o.buf, ev)
		o.signal()
		return true
	}

	if !ev.Critical() {
		return true
	}

	for i, queued := range o.buf {
		if !queued.Critical() {
			o.buf = append(o.buf[:i], o.buf[i+1:]...)
			o.buf = append(o.buf, ev)
			o.signal()
			return true
		}
	}

	// Full of critical events: the consumer is hopeless.
	return false
}

func (o *outbox) next(ctx context.Context) (*Event, bool) {
	for {
		o.mu.Lock()
		if len(o.buf) > 0 {
			ev := o.buf[0]
			o.buf = o.buf[1:]
			o.mu.Unlock()
			return ev, true
		}
		if o.closed {
			o.mu.Unlock()
			return nil, false
		}
		o.mu.Unlock()

		select {
		case <-o.ready:
		case <-ctx.Done():
			return nil, false
		}
	}
}

func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.signal()
	o.mu.Unlock()
}

func (o *outbox) signal() {
	select {
	case o.ready <- struct{}{}:
	default:
	}
}
