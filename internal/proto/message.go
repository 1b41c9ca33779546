package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type" validate:"required"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeRegister      = "register"
	InboundTypeLogin         = "login"
	InboundTypeResume        = "resume"
	InboundTypeLogout        = "logout"
	InboundTypeSendMessage   = "send-message"
	InboundTypeSendFile      = "send-file"
	InboundTypeLoadGeneral   = "load-general-messages"
	InboundTypeLoadPrivate   = "load-private-messages"
	InboundTypeDeleteMessage = "delete-message"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventRegisterResponse = "register-response"
	EventLoginResponse    = "login-response"
	EventUsersList        = "users-list"
	EventOnlineUsers      = "online-users"
	EventOnlineCount      = "online-count"
	EventUserStatus       = "user-status"
	EventGeneralHistory   = "load-general-messages"
	EventPrivateHistory   = "private-messages-loaded"
	EventNewMessage       = "new-message"
	EventPrivateMessage   = "private-message"
	EventMessageDeleted   = "message-deleted"
)

// CredentialsData is sent with register and login.
type CredentialsData struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

// ResumeData re-authenticates a connection with a previously issued token.
type ResumeData struct {
	Token string `json:"token" validate:"required"`
}

// SendMessageData is a text message. An empty RecipientUsername targets the general room.
type SendMessageData struct {
	RecipientUsername string `json:"recipientUsername,omitempty" validate:"omitempty,max=64"`
	Message           string `json:"message" validate:"required"`
}

// SendFileData shares a blob previously returned by POST /upload.
type SendFileData struct {
	RecipientUsername string `json:"recipientUsername,omitempty" validate:"omitempty,max=64"`
	Filename          string `json:"filename" validate:"required"`
	OriginalName      string `json:"originalname" validate:"required"`
	URL               string `json:"url" validate:"required"`
	MimeType          string `json:"mimetype" validate:"required"`
	Size              int64  `json:"size,omitempty" validate:"gte=0"`
	Caption           string `json:"caption,omitempty"`
}

// LoadPrivateData requests the dialog shared with Username.
type LoadPrivateData struct {
	Username string `json:"username" validate:"required,max=64"`
}

// DeleteMessageData identifies a message to delete.
type DeleteMessageData struct {
	ID int64 `json:"id" validate:"required,gt=0"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// ResponseData answers register and login.
type ResponseData struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Code     string `json:"code,omitempty"`
	Username string `json:"username,omitempty"`
	Token    string `json:"token,omitempty"`
}

// UsersData carries a list of usernames.
type UsersData struct {
	Users []string `json:"users"`
}

// CountData carries the number of online users.
type CountData struct {
	Count int `json:"count"`
}

// UserStatusData notifies that a user went online or offline.
type UserStatusData struct {
	Username string `json:"username"`
	Status   string `json:"status"`
}

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// MessageData is a persisted chat message as seen by clients.
type MessageData struct {
	ID                int64     `json:"id"`
	Username          string    `json:"username"`
	RecipientUsername string    `json:"recipientUsername,omitempty"`
	IsGeneral         bool      `json:"isGeneral"`
	Type              string    `json:"type"`
	Message           string    `json:"message,omitempty"`
	Filename          string    `json:"filename,omitempty"`
	OriginalName      string    `json:"originalname,omitempty"`
	URL               string    `json:"url,omitempty"`
	MimeType          string    `json:"mimetype,omitempty"`
	Size              int64     `json:"size,omitempty"`
	Caption           string    `json:"caption,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// HistoryData carries general room history, oldest first.
type HistoryData struct {
	Messages []MessageData `json:"messages"`
}

// PrivateHistoryData carries one dialog's history, oldest first.
type PrivateHistoryData struct {
	Username string        `json:"username"`
	Messages []MessageData `json:"messages"`
}

// DeletedData identifies a removed message.
type DeletedData struct {
	ID int64 `json:"id"`
}

// UploadResponse is returned by POST /upload.
type UploadResponse struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"originalname"`
	MimeType     string `json:"mimetype"`
	Size         int64  `json:"size"`
	URL          string `json:"url"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
