// Package auth - jwt.go handles JWT token creation, signing, and verification
// using a shared secret held by an Issuer, plus SHA-256 hashing of token
// material for session storage.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes access tokens from refresh tokens. A refresh token
// presented where an access token is expected (or vice versa) is rejected.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims represents the JWT claims structure. Subject carries the user ID.
type Claims struct {
	TenantID  string    `json:"tenant_id"`
	TokenType TokenType `json:"type"`
	jwt.RegisteredClaims
}

// Issuer creates and verifies the backend's HS256 tokens. Construct one at
// startup and share it; it holds the validated secret so no package-level
// state is needed.
type Issuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// isDevMode checks if we're running in development mode
func isDevMode() bool {
	devMode := os.Getenv("DEV_MODE")
	ginMode := os.Getenv("GIN_MODE")

	return devMode == "true" || devMode == "1" || ginMode == "debug"
}

// generateRandomSecret creates a cryptographically secure random secret
func generateRandomSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a less secure but functional secret
		return fmt.Sprintf("dev-fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// NewIssuer validates the signing secret and returns a ready Issuer.
// In production an empty secret is a startup failure. In dev mode a random
// secret is generated and a warning logged; sessions then do not survive
// restarts.
func NewIssuer(secret, issuer string, accessTTL, refreshTTL time.Duration) (*Issuer, error) {
	if secret == "" {
		if !isDevMode() {
			return nil, errors.New("SECURITY ERROR: auth.jwt_secret is required in production. " +
				"Generate a secure secret with: openssl rand -hex 32")
		}
		secret = generateRandomSecret()
		slog.Warn("auth.jwt_secret not set, using auto-generated secret for development")
		slog.Warn("sessions will not persist across restarts, set auth.jwt_secret for persistent sessions")
	}
	if len(secret) < 32 {
		slog.Warn("auth.jwt_secret is shorter than the recommended 32 characters")
	}
	if accessTTL <= 0 {
		accessTTL = 24 * time.Hour
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	return &Issuer{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// AccessTTL returns the configured access token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// CreateAccessToken mints a signed access token for the user in the given
// tenant. The returned jti is the token's unique ID.
func (i *Issuer) CreateAccessToken(userID, tenantID string) (token string, jti string, err error) {
	return i.sign(userID, tenantID, TokenTypeAccess, i.accessTTL)
}

// CreateRefreshToken mints a signed refresh token for the user in the given
// tenant.
func (i *Issuer) CreateRefreshToken(userID, tenantID string) (token string, jti string, err error) {
	return i.sign(userID, tenantID, TokenTypeRefresh, i.refreshTTL)
}

func (i *Issuer) sign(userID, tenantID string, typ TokenType, ttl time.Duration) (string, string, error) {
	jti := uuid.New().String()
	now := time.Now()
	claims := &Claims{
		TenantID:  tenantID,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    i.issuer,
			Subject:   userID,
			ID:        jti,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, jti, nil
}

// Decode parses and verifies a token of either type. Every failure unwraps to
// ErrInvalidToken; the specific variant identifies the cause.
func (i *Issuer) Decode(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// DecodeType verifies a token and additionally enforces its type claim.
func (i *Issuer) DecodeType(tokenString string, want TokenType) (*Claims, error) {
	claims, err := i.Decode(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != want {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

// HashToken returns the SHA-256 hex digest of a token. Sessions store only
// these digests; tokens are high-entropy so a fast hash is sufficient and
// keeps lookups indexable.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
