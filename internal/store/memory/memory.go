package memory

import (
	"context"
	"sync"

	"github.com/agromongol/agrochat-server/internal/store"
)

// Store keeps messages in process memory. It is meant for development and
// tests; nothing survives a restart.
type Store struct {
	mu       sync.Mutex
	nextID   int64
	messages []store.Message
	failWith error
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{}
}

// FailAppends makes every following AppendMessage return err. Pass nil to
// restore normal behaviour.
func (s *Store) FailAppends(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// AppendMessage stores a copy of msg and sets its ID.
func (s *Store) AppendMessage(ctx context.Context, msg *store.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return s.failWith
	}
	s.nextID++
	msg.ID = s.nextID

	stored := *msg
	if msg.RecipientID != nil {
		r := *msg.RecipientID
		stored.RecipientID = &r
	}
	s.messages = append(s.messages, stored)
	return nil
}

// ListMessages returns messages of a room, newest first.
func (s *Store) ListMessages(ctx context.Context, roomID string, limit int, beforeID *int64) ([]*store.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*store.Message, 0, limit)
	for i := len(s.messages) - 1; i >= 0 && len(out) < limit; i-- {
		m := s.messages[i]
		if m.RoomID != roomID {
			continue
		}
		if beforeID != nil && m.ID >= *beforeID {
			continue
		}
		out = append(out, &m)
	}
	return out, nil
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
