package core

import (
	"errors"

	"github.com/vovakirdan/famchat/internal/auth"
	"github.com/vovakirdan/famchat/internal/store"
)

// Error codes for domain errors.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeValidation         = "validation_failed"
	ErrCodeUnauthenticated    = "unauthenticated"
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeDuplicateUsername  = "duplicate_username"
	ErrCodeUserNotFound       = "user_not_found"
	ErrCodeBadCredential      = "bad_credential"
	ErrCodeStorageUnavailable = "storage_unavailable"
	ErrCodeRateLimited        = "rate_limited"
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// ErrorFor maps directory and store errors onto client-facing codes.
// Anything unrecognised is reported as storage_unavailable.
func ErrorFor(err error) *CoreError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrDuplicateUsername):
		return coreError(ErrCodeDuplicateUsername, "username already taken")
	case errors.Is(err, store.ErrUserNotFound):
		return coreError(ErrCodeUserNotFound, "user not found")
	case errors.Is(err, auth.ErrBadCredential):
		return coreError(ErrCodeBadCredential, "wrong password")
	case errors.Is(err, auth.ErrInvalidUsername):
		return coreError(ErrCodeValidation, "username must be 3-32 characters without spaces or ':'")
	case errors.Is(err, auth.ErrInvalidPassword):
		return coreError(ErrCodeValidation, "password must be at least 6 characters")
	default:
		return coreError(ErrCodeStorageUnavailable, "service temporarily unavailable, try again")
	}
}
