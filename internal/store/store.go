package store

import (
	"context"
	"time"
)

// Message represents a persisted chat message.
type Message struct {
	ID          int64
	UserID      string
	Username    string
	Body        string
	RoomID      string
	RecipientID *string // nil when the message has no direct recipient
	CreatedAt   time.Time
}

// MessageStore handles message persistence.
type MessageStore interface {
	// AppendMessage persists a message and sets its ID.
	// CreatedAt must already be set by the caller.
	AppendMessage(ctx context.Context, msg *Message) error

	// ListMessages retrieves messages from a room, newest first.
	// If beforeID is provided, returns messages older than that ID.
	// Limit determines max number of messages to return.
	ListMessages(ctx context.Context, roomID string, limit int, beforeID *int64) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	MessageStore

	// Ping checks that the backing database is reachable.
	Ping(ctx context.Context) error

	// Close closes the underlying database connection.
	Close() error
}
