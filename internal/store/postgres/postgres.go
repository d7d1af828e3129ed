package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agromongol/agrochat-server/internal/store"
)

// Schema matches the messages table the web application already uses.
const Schema = `
CREATE TABLE IF NOT EXISTS messages (
	id           BIGSERIAL PRIMARY KEY,
	user_id      TEXT NOT NULL,
	username     TEXT NOT NULL DEFAULT '',
	message      TEXT NOT NULL,
	room_id      TEXT NOT NULL,
	recipient_id TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, id DESC);
`

// PostgresStore implements store.Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*PostgresStore)(nil)

// New connects to databaseURL, verifies the connection and applies the schema.
func New(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// AppendMessage persists a message to storage.
func (s *PostgresStore) AppendMessage(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT INTO messages (user_id, username, message, room_id, recipient_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := s.pool.QueryRow(ctx, query,
		msg.UserID, msg.Username, msg.Body, msg.RoomID, msg.RecipientID, msg.CreatedAt.UTC(),
	).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages retrieves messages from a room with pagination.
func (s *PostgresStore) ListMessages(ctx context.Context, roomID string, limit int, beforeID *int64) ([]*store.Message, error) {
	var rows pgx.Rows
	var err error

	if beforeID != nil {
		rows, err = s.pool.Query(ctx, `
			SELECT id, user_id, username, message, room_id, recipient_id, created_at
			FROM messages
			WHERE room_id = $1 AND id < $2
			ORDER BY id DESC
			LIMIT $3
		`, roomID, *beforeID, limit)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT id, user_id, username, message, room_id, recipient_id, created_at
			FROM messages
			WHERE room_id = $1
			ORDER BY id DESC
			LIMIT $2
		`, roomID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0, limit)
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.UserID,
			&msg.Username,
			&msg.Body,
			&msg.RoomID,
			&msg.RecipientID,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}
