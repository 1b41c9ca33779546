package core

import "github.com/vovakirdan/famchat/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventRegisterResponse answers a register command.
	EventRegisterResponse EventKind = iota
	// EventLoginResponse answers a login or resume command.
	EventLoginResponse
	// EventUsersList carries the full directory listing.
	EventUsersList
	// EventOnlineUsers carries the full presence set.
	EventOnlineUsers
	// EventOnlineCount carries the number of online users.
	EventOnlineCount
	// EventUserStatus notifies about a user going online or offline.
	EventUserStatus
	// EventGeneralHistory delivers general room history.
	EventGeneralHistory
	// EventDialogHistory delivers the history of one private conversation.
	EventDialogHistory
	// EventNewMessage delivers a new general room message.
	EventNewMessage
	// EventPrivateMessage delivers a new private message.
	EventPrivateMessage
	// EventMessageDeleted notifies that a message was removed.
	EventMessageDeleted
	// EventError notifies clients about a domain error.
	EventError
)

// Event is sent to clients to describe what happened in the system.
// Broadcast events are shared between recipients and must not be mutated.
type Event struct {
	Kind      EventKind
	Success   bool   // register/login responses
	Text      string // human-readable response text
	User      string // login username, status subject, or dialog peer
	Token     string
	Online    bool
	Users     []string
	Count     int
	Message   *store.Message
	Messages  []*store.Message
	MessageID int64
	Error     *CoreError
}

func errorEvent(code, msg string) *Event {
	return &Event{Kind: EventError, Error: coreError(code, msg)}
}
