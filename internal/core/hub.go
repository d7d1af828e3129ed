package core

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agromongol/agrochat-server/internal/store"
)

const defaultPersistTimeout = 5 * time.Second

// Options tunes a Hub. Zero values select defaults.
type Options struct {
	// PersistTimeout bounds each message write.
	PersistTimeout time.Duration
	// EventBuffer is the outbound queue size of every connection.
	EventBuffer int
	Logger      *zerolog.Logger
	// Now overrides the clock used to stamp messages.
	Now func() time.Time
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	Connections int
	Users       int
	Rooms       int
}

// Hub owns connection lifecycles and the shared presence and room state.
type Hub struct {
	presence    *Presence
	rooms       *Rooms
	conns       *connTable
	dispatcher  *Dispatcher
	eventBuffer int
	log         *zerolog.Logger

	// inflight counts Send calls; draining stops new ones from starting.
	mu       sync.Mutex
	draining bool
	inflight sync.WaitGroup
}

// NewHub creates a hub that persists messages through st.
func NewHub(st store.MessageStore, opts Options) *Hub {
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = defaultPersistTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	presence := NewPresence()
	rooms := NewRooms()
	conns := newConnTable()

	return &Hub{
		presence: presence,
		rooms:    rooms,
		conns:    conns,
		dispatcher: &Dispatcher{
			presence: presence,
			rooms:    rooms,
			conns:    conns,
			store:    st,
			timeout:  opts.PersistTimeout,
			validate: newValidator(),
			now:      opts.Now,
			log:      logger,
		},
		eventBuffer: opts.EventBuffer,
		log:         logger,
	}
}

// Run blocks until ctx is cancelled and then disconnects every connection.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	for _, conn := range h.conns.all() {
		h.Disconnect(conn)
	}
	h.log.Info().Msg("hub stopped")
}

// Connect creates the state for a freshly accepted transport session.
// authUserID is the identity proven at handshake, or empty.
func (h *Hub) Connect(id, authUserID string) *Conn {
	conn := NewConn(id, authUserID, h.eventBuffer)
	h.conns.add(conn)
	h.log.Info().Str("conn_id", id).Str("auth_user_id", authUserID).Msg("connection opened")
	return conn
}

// Register binds userID to conn. Registering again, with the same or another
// id, is allowed.
func (h *Hub) Register(conn *Conn, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return coreError(ErrCodeValidation, "userId is required", ErrValidation)
	}
	if conn.AuthUserID != "" && userID != conn.AuthUserID {
		return coreError(ErrCodeUnauthorized, "userId does not match the authenticated session", ErrUnauthorized)
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.state == StateDisconnected {
		return ErrDisconnected
	}
	h.presence.Register(userID, conn.ID)
	conn.userID = userID
	conn.state = StateRegistered

	h.log.Info().Str("user_id", userID).Str("conn_id", conn.ID).Msg("registered user")
	return nil
}

// Join subscribes conn to roomID. Joining twice is a no-op.
func (h *Hub) Join(conn *Conn, roomID string) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return coreError(ErrCodeValidation, "roomId is required", ErrValidation)
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.state == StateDisconnected {
		return ErrDisconnected
	}
	if h.rooms.Join(conn.ID, roomID) {
		h.log.Info().Str("conn_id", conn.ID).Str("room_id", roomID).Msg("joined room")
	}
	return nil
}

// Send runs a message through the dispatcher on behalf of conn.
func (h *Hub) Send(ctx context.Context, conn *Conn, req SendRequest) (*Message, error) {
	if conn.State() == StateDisconnected {
		return nil, ErrDisconnected
	}
	h.mu.Lock()
	if h.draining {
		h.mu.Unlock()
		return nil, ErrDisconnected
	}
	h.inflight.Add(1)
	h.mu.Unlock()
	defer h.inflight.Done()

	return h.dispatcher.Dispatch(ctx, conn, req)
}

// Drain refuses new messages and waits for accepted ones to finish
// persisting and broadcasting, or for ctx to end.
func (h *Hub) Drain(ctx context.Context) error {
	h.mu.Lock()
	h.draining = true
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect drops the presence entry and every room membership of conn in
// one step. It is idempotent.
func (h *Hub) Disconnect(conn *Conn) {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.state == StateDisconnected {
		return
	}
	conn.closeLocked()

	userID, wentOffline := h.presence.Unregister(conn.ID)
	left := h.rooms.Leave(conn.ID)
	h.conns.remove(conn.ID)

	ev := h.log.Info().Str("conn_id", conn.ID).Strs("rooms", left)
	if wentOffline {
		ev = ev.Str("user_id", userID)
	}
	ev.Msg("connection closed")
}

// Handle executes a single command for conn.
func (h *Hub) Handle(ctx context.Context, conn *Conn, cmd *Command) error {
	switch cmd.Kind {
	case CommandRegister:
		return h.Register(conn, cmd.UserID)
	case CommandJoinRoom:
		return h.Join(conn, cmd.Room)
	case CommandSendRoomMessage:
		_, err := h.Send(ctx, conn, cmd.Send)
		return err
	default:
		return coreError(ErrCodeBadRequest, "unknown command", nil)
	}
}

// Serve processes conn's commands in arrival order until ctx is cancelled
// or the connection is disconnected. Failures are reported back to conn as
// error events.
func (h *Hub) Serve(ctx context.Context, conn *Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			return
		case cmd := <-conn.Commands:
			if cmd == nil {
				continue
			}
			if err := h.Handle(ctx, conn, cmd); err != nil {
				conn.deliver(&Event{Kind: EventError, Error: AsCoreError(err), Source: cmd.Kind})
			}
		}
	}
}

// Online reports whether userID is reachable.
func (h *Hub) Online(userID string) bool {
	return h.presence.Online(userID)
}

// Stats reports current connection, user and room counts.
func (h *Hub) Stats() Stats {
	return Stats{
		Connections: h.conns.count(),
		Users:       h.presence.Len(),
		Rooms:       h.rooms.Len(),
	}
}

// connTable is the directory of live connections by id.
type connTable struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

func newConnTable() *connTable {
	return &connTable{conns: make(map[string]*Conn)}
}

func (t *connTable) add(c *Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[c.ID] = c
}

func (t *connTable) remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, id)
}

func (t *connTable) get(id string) *Conn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.conns[id]
}

func (t *connTable) all() []*Conn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Conn, 0, len(t.conns))
	for _, c := range t.conns {
		out = append(out, c)
	}
	return out
}

func (t *connTable) count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}
