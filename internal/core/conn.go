package core

import "sync"

// ConnState is the lifecycle state of a connection.
type ConnState int

const (
	// StateConnected is entered on transport handshake.
	StateConnected ConnState = iota
	// StateRegistered is entered once the client binds a user identity.
	StateRegistered
	// StateDisconnected is terminal.
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateRegistered:
		return "registered"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

const (
	defaultCommandBuffer = 8
	defaultEventBuffer   = 64
)

// Conn is one live transport session as seen by the core layer.
type Conn struct {
	ID string
	// AuthUserID is the identity proven at handshake, empty when the
	// transport did not authenticate the session.
	AuthUserID string

	Commands chan *Command
	Events   chan *Event

	mu     sync.Mutex
	state  ConnState
	userID string

	done     chan struct{}
	doneOnce sync.Once
	slow     chan struct{}
	slowOnce sync.Once
}

// NewConn constructs a connection with initialized channels.
// A non-positive eventBuffer selects the default.
func NewConn(id, authUserID string, eventBuffer int) *Conn {
	if eventBuffer <= 0 {
		eventBuffer = defaultEventBuffer
	}
	return &Conn{
		ID:         id,
		AuthUserID: authUserID,
		Commands:   make(chan *Command, defaultCommandBuffer),
		Events:     make(chan *Event, eventBuffer),
		done:       make(chan struct{}),
		slow:       make(chan struct{}),
	}
}

// State reports the current lifecycle state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// UserID returns the identity bound by the last registration, if any.
func (c *Conn) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Done is closed once the connection is disconnected.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Slow is closed when an event could not be queued because the client is
// not draining its event queue.
func (c *Conn) Slow() <-chan struct{} {
	return c.slow
}

// deliver queues an event without blocking. It returns false when the
// connection is gone or its queue is full.
func (c *Conn) deliver(ev *Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Events <- ev:
		return true
	default:
		c.slowOnce.Do(func() { close(c.slow) })
		return false
	}
}

// closeLocked marks the connection terminal. Callers must hold c.mu.
func (c *Conn) closeLocked() {
	c.state = StateDisconnected
	c.doneOnce.Do(func() { close(c.done) })
}
