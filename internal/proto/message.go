package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeRegisterUser = "registerUser"
	InboundTypeJoinRoom     = "joinRoom"
	InboundTypeSendMessage  = "send_message"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventReceiveMessage         = "receive_message"
	EventNewMessageNotification = "newMessageNotification"
)

// RegisterData binds the connection to a user id. Clients may also send the
// id as a bare JSON string.
type RegisterData struct {
	UserID string `json:"userId"`
}

// JoinData requests to join a specific room.
type JoinData struct {
	RoomID string `json:"roomId"`
}

// SendMessageData is a chat message from the client.
type SendMessageData struct {
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	Message     string `json:"message"`
	RoomID      string `json:"roomId"`
	RecipientID string `json:"recipientId,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// ReceiveMessage is delivered to every member of the message's room.
type ReceiveMessage struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"userId"`
	Username    string    `json:"username"`
	Message     string    `json:"message"`
	RoomID      string    `json:"roomId"`
	RecipientID string    `json:"recipientId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewMessageNotification tells an online recipient outside the room that a
// message addressed to them arrived.
type NewMessageNotification struct {
	FromUserID   string `json:"fromUserId"`
	FromUsername string `json:"fromUsername"`
	Message      string `json:"message"`
	RoomID       string `json:"roomId"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
