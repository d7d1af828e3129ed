package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventReceiveMessage delivers a persisted message to room members.
	EventReceiveMessage EventKind = iota
	// EventNewMessageNotification tells an online recipient outside the room
	// that a message arrived for them.
	EventNewMessageNotification
	// EventError notifies the originating connection about a failed command.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind         EventKind
	Message      Message
	Notification *Notification
	Error        *CoreError
	// Source names the inbound command an error refers to.
	Source CommandKind
}
