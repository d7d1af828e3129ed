package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandRegister binds a user identity to the connection.
	CommandRegister CommandKind = iota
	// CommandJoinRoom subscribes the connection to a room.
	CommandJoinRoom
	// CommandSendRoomMessage persists and delivers a chat message.
	CommandSendRoomMessage
)

// String returns the wire name of the command.
func (k CommandKind) String() string {
	switch k {
	case CommandRegister:
		return "registerUser"
	case CommandJoinRoom:
		return "joinRoom"
	case CommandSendRoomMessage:
		return "send_message"
	default:
		return "unknown"
	}
}

// Command represents an action requested by a client.
type Command struct {
	Kind   CommandKind
	UserID string
	Room   string
	Send   SendRequest
}

// SendRequest is the payload of a send_message command.
type SendRequest struct {
	UserID      string
	Username    string
	Text        string
	Room        string
	RecipientID string
}
