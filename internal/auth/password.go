// Package auth provides the authentication primitives for the admin backend:
// password hashing, JWT issuance and verification, permission set evaluation,
// and the tenant access guard. See internal/middleware/auth.go for the
// request-time authentication logic that uses these primitives.
package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 12

	// maxPasswordBytes is bcrypt's input limit. Longer inputs are cut at the
	// raw 72-byte boundary, even mid-rune, so hashes stay verifiable against
	// clients that apply the same byte-level cut.
	maxPasswordBytes = 72
)

// truncatePassword returns the first maxPasswordBytes of the UTF-8 encoding.
func truncatePassword(password string) []byte {
	b := []byte(password)
	if len(b) <= maxPasswordBytes {
		return b
	}
	return b[:maxPasswordBytes]
}

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(truncatePassword(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword checks a plaintext password against a stored bcrypt hash.
// Returns false on any error, including malformed hashes; it never panics.
func VerifyPassword(password, storedHash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(storedHash), truncatePassword(password))
	return err == nil
}
