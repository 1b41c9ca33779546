package core

import "github.com/vovakirdan/famchat/internal/store"

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandRegister creates a directory entry.
	CommandRegister CommandKind = iota
	// CommandLogin authenticates the connection with a username and password.
	CommandLogin
	// CommandResume authenticates the connection with a previously issued token.
	CommandResume
	// CommandLogout returns the connection to the anonymous state.
	CommandLogout
	// CommandSendMessage sends text to the general room or, with Recipient set, to one user.
	CommandSendMessage
	// CommandSendFile shares an uploaded blob, general or private like CommandSendMessage.
	CommandSendFile
	// CommandLoadGeneral requests general room history.
	CommandLoadGeneral
	// CommandLoadDialog requests the history shared with Recipient.
	CommandLoadDialog
	// CommandDeleteMessage deletes one of the caller's own messages.
	CommandDeleteMessage
)

var commandNames = map[CommandKind]string{
	CommandRegister:      "register",
	CommandLogin:         "login",
	CommandResume:        "resume",
	CommandLogout:        "logout",
	CommandSendMessage:   "send-message",
	CommandSendFile:      "send-file",
	CommandLoadGeneral:   "load-general-messages",
	CommandLoadDialog:    "load-private-messages",
	CommandDeleteMessage: "delete-message",
}

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return "unknown"
}

// Command represents an action requested by a client.
type Command struct {
	Kind       CommandKind
	Username   string
	Password   string
	Token      string
	Recipient  string // private target, or the peer for CommandLoadDialog
	Text       string
	Attachment *store.Attachment
	Caption    string
	MessageID  int64
}
