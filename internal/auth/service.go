package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/vovakirdan/famchat/internal/store"
)

var (
	// ErrBadCredential is returned when the password does not match the stored hash.
	ErrBadCredential = errors.New("bad credential")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
)

const (
	minUsernameLength = 3
	maxUsernameLength = 32
)

// Service is the identity directory: registration, verification, listing,
// and token issuance for verified users.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// NormalizeUsername trims surrounding whitespace.
func NormalizeUsername(username string) string {
	return strings.TrimSpace(username)
}

// ValidateCredentials applies the boundary checks used at registration.
func ValidateCredentials(username, password string) error {
	if n := len(username); n < minUsernameLength || n > maxUsernameLength {
		return ErrInvalidUsername
	}
	if strings.ContainsFunc(username, unicode.IsSpace) || strings.ContainsFunc(username, unicode.IsControl) {
		return ErrInvalidUsername
	}
	// ':' separates dialog key parts; "general" is the room sentinel.
	if strings.ContainsRune(username, ':') || username == store.GeneralRecipient {
		return ErrInvalidUsername
	}
	if len(password) < MinPasswordLength || len(password) > maxPasswordBytes {
		return ErrInvalidPassword
	}
	return nil
}

// Register creates a new user with a hashed password and returns a token.
// Uniqueness is decided by the store; a lost race yields store.ErrDuplicateUsername.
func (s *Service) Register(ctx context.Context, username, password string) (string, error) {
	username = NormalizeUsername(username)
	if err := ValidateCredentials(username, password); err != nil {
		return "", err
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return "", err
	}

	user, err := s.store.CreateUser(ctx, username, hashedPassword)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateUsername) {
			return "", err
		}
		return "", fmt.Errorf("create user: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Username)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return token, nil
}

// Verify checks a username/password pair. It returns store.ErrUserNotFound or
// ErrBadCredential on failure.
func (s *Service) Verify(ctx context.Context, username, password string) (*store.User, error) {
	user, err := s.store.GetUserByUsername(ctx, NormalizeUsername(username))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			burnComparison(password)
			return nil, err
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if err := ComparePassword(user.PasswordHash, password); err != nil {
		return nil, ErrBadCredential
	}

	return user, nil
}

// Login verifies credentials and returns the user together with a fresh token.
func (s *Service) Login(ctx context.Context, username, password string) (*store.User, string, error) {
	user, err := s.Verify(ctx, username, password)
	if err != nil {
		return nil, "", err
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Username)
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}

	return user, token, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

// ListUsernames returns the directory listing.
func (s *Service) ListUsernames(ctx context.Context) ([]string, error) {
	names, err := s.store.ListUsernames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return names, nil
}
