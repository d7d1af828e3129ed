package core

import "time"

// Message is the domain model for a chat message.
type Message struct {
	ID          int64
	Room        string
	UserID      string
	Username    string
	Text        string
	RecipientID string
	CreatedAt   time.Time
}

// Notification is the short form of a message pushed to a recipient who is
// online but not looking at the room.
type Notification struct {
	FromUserID   string
	FromUsername string
	Text         string
	Room         string
}
