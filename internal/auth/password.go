package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// bcryptCost is the default cost for bcrypt hashing.
	bcryptCost = 10

	// MinPasswordLength is the shortest secret accepted at registration.
	MinPasswordLength = 6
	// maxPasswordBytes is bcrypt's input limit; longer secrets are rejected rather than truncated.
	maxPasswordBytes = 72
)

// dummyHash is compared against when the user does not exist, so unknown and
// known usernames cost the same bcrypt work.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("famchat-dummy-secret"), bcryptCost)

// HashPassword generates a salted bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// ComparePassword compares a bcrypt hashed password with its plaintext version
// in constant time. It returns nil on match.
func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func burnComparison(password string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}
