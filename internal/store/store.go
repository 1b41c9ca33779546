package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicateUsername is returned when the username uniqueness constraint rejects an insert.
	ErrDuplicateUsername = errors.New("username already taken")
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrMessageNotFound is returned when no message matches the lookup.
	ErrMessageNotFound = errors.New("message not found")
	// ErrUnavailable wraps any failure of the underlying storage engine.
	ErrUnavailable = errors.New("storage unavailable")
)

// GeneralRecipient is the recipient sentinel for the shared room.
const GeneralRecipient = "general"

// DefaultHistoryLimit caps history loads when the caller passes a non-positive limit.
const DefaultHistoryLimit = 100

// User represents a registered user.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// MessageKind distinguishes text and file messages.
type MessageKind string

const (
	MessageKindText MessageKind = "text"
	MessageKindFile MessageKind = "file"
)

// Attachment is the blob tuple produced by the upload endpoint.
// The store only keeps and forwards it.
type Attachment struct {
	StoredName   string
	OriginalName string
	URL          string
	MimeType     string
	SizeBytes    int64
}

// Message represents a persisted chat message.
type Message struct {
	ID         int64
	From       string
	To         string // GeneralRecipient or a username
	Kind       MessageKind
	Text       string
	Attachment *Attachment // set for MessageKindFile
	Caption    string
	CreatedAt  time.Time
}

// IsGeneral reports whether the message belongs to the general room.
func (m *Message) IsGeneral() bool {
	return m.To == GeneralRecipient
}

// Participants returns the usernames that own a private message's conversation.
// It returns nil for general messages.
func (m *Message) Participants() []string {
	if m.IsGeneral() {
		return nil
	}
	if m.From == m.To {
		return []string{m.From}
	}
	return []string{m.From, m.To}
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser inserts a user. Returns ErrDuplicateUsername when the
	// storage-level unique constraint rejects the username.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByUsername retrieves a user by username or returns ErrUserNotFound.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// ListUsernames returns every registered username, sorted.
	ListUsernames(ctx context.Context) ([]string, error)
}

// MessageStore is the conversation log.
type MessageStore interface {
	// AppendMessage persists msg, assigning msg.ID and msg.CreatedAt (when zero).
	AppendMessage(ctx context.Context, msg *Message) error

	// LoadGeneral returns up to limit of the newest general-room messages, oldest first.
	LoadGeneral(ctx context.Context, limit int) ([]*Message, error)

	// LoadDialog returns up to limit of the newest messages exchanged between
	// userA and userB in either direction, oldest first.
	LoadDialog(ctx context.Context, userA, userB string, limit int) ([]*Message, error)

	// GetMessage retrieves a message or returns ErrMessageNotFound.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// DeleteMessage hard-deletes a message. Returns false when it did not exist.
	DeleteMessage(ctx context.Context, id int64) (bool, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}

// NormalizeLimit applies DefaultHistoryLimit to non-positive limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}
