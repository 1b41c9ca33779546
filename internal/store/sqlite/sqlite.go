package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/famchat/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies pending migrations.
// Use ":memory:" for a throwaway database.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := Migrate(db)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests that want a hand-written schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:" shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser inserts a user; the UNIQUE index on username decides races.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash, created_at)
		VALUES (?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, username, passwordHash, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateUsername
		}
		return nil, unavailable("insert user", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, unavailable("get last insert id", err)
	}

	return s.getUser(ctx, `WHERE id = ?`, id)
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	return s.getUser(ctx, `WHERE username = ?`, username)
}

func (s *SQLiteStore) getUser(ctx context.Context, where string, arg any) (*store.User, error) {
	query := `SELECT id, username, password_hash, created_at FROM users ` + where
	var user store.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, unavailable("query user", err)
	}

	return &user, nil
}

// ListUsernames returns every registered username, sorted.
func (s *SQLiteStore) ListUsernames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username FROM users ORDER BY username ASC`)
	if err != nil {
		return nil, unavailable("query usernames", err)
	}
	defer rows.Close()

	usernames := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, unavailable("scan username", err)
		}
		usernames = append(usernames, name)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate usernames", err)
	}

	return usernames, nil
}

// ==== MessageStore implementation ====

const messageColumns = `id, from_user, to_user, message, filename, original_name, url, mimetype,
	size_bytes, caption, type, created_at`

// AppendMessage persists a message; the AUTOINCREMENT key becomes its ID.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *store.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	if msg.Kind == "" {
		msg.Kind = store.MessageKindText
	}

	var filename, originalName, url, mimetype sql.NullString
	var size sql.NullInt64
	if a := msg.Attachment; a != nil {
		filename = sql.NullString{String: a.StoredName, Valid: true}
		originalName = sql.NullString{String: a.OriginalName, Valid: true}
		url = sql.NullString{String: a.URL, Valid: true}
		mimetype = sql.NullString{String: a.MimeType, Valid: true}
		size = sql.NullInt64{Int64: a.SizeBytes, Valid: true}
	}

	query := `
		INSERT INTO messages (from_user, to_user, message, filename, original_name, url, mimetype,
			size_bytes, caption, type, is_general, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		msg.From,
		msg.To,
		msg.Text,
		filename,
		originalName,
		url,
		mimetype,
		size,
		msg.Caption,
		string(msg.Kind),
		msg.IsGeneral(),
		msg.CreatedAt,
	)
	if err != nil {
		return unavailable("insert message", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return unavailable("get last insert id", err)
	}

	msg.ID = id
	return nil
}

// LoadGeneral returns the newest general-room messages, oldest first.
func (s *SQLiteStore) LoadGeneral(ctx context.Context, limit int) ([]*store.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE is_general = 1
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	return s.listMessages(ctx, query, store.NormalizeLimit(limit))
}

// LoadDialog returns the newest messages between two users in either direction, oldest first.
func (s *SQLiteStore) LoadDialog(ctx context.Context, userA, userB string, limit int) ([]*store.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE is_general = 0
		  AND ((from_user = ? AND to_user = ?) OR (from_user = ? AND to_user = ?))
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	return s.listMessages(ctx, query, userA, userB, userB, userA, store.NormalizeLimit(limit))
}

func (s *SQLiteStore) listMessages(ctx context.Context, query string, args ...any) ([]*store.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("query messages", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, unavailable("scan message", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate messages", err)
	}

	// Queries walk newest first so LIMIT keeps the tail; flip to chronological order.
	slices.Reverse(messages)
	return messages, nil
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrMessageNotFound
		}
		return nil, unavailable("query message", err)
	}
	return msg, nil
}

// DeleteMessage hard-deletes a message.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return false, unavailable("delete message", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, unavailable("get rows affected", err)
	}
	return rows > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*store.Message, error) {
	var msg store.Message
	var kind string
	var filename, originalName, url, mimetype sql.NullString
	var size sql.NullInt64
	err := row.Scan(
		&msg.ID,
		&msg.From,
		&msg.To,
		&msg.Text,
		&filename,
		&originalName,
		&url,
		&mimetype,
		&size,
		&msg.Caption,
		&kind,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	msg.Kind = store.MessageKind(kind)
	msg.CreatedAt = msg.CreatedAt.UTC()
	if filename.Valid || url.Valid {
		msg.Attachment = &store.Attachment{
			StoredName:   filename.String,
			OriginalName: originalName.String,
			URL:          url.String,
			MimeType:     mimetype.String,
			SizeBytes:    size.Int64,
		}
	}
	return &msg, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", store.ErrUnavailable, op, err)
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
