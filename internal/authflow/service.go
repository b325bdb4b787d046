// Package authflow implements the credential and session lifecycle: login,
// refresh-token rotation, logout, and registration.
//
// Failure responses on the login path are deliberately uniform. Unknown
// email, wrong password, and a disabled account all surface as
// ErrInvalidCredentials so the endpoint cannot be used to probe which
// accounts exist.
package authflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/admin-backend/admin-backend/internal/auth"
	"github.com/admin-backend/admin-backend/internal/db/models"
	"github.com/admin-backend/admin-backend/internal/telemetry"
)

var (
	// ErrInvalidCredentials covers every login failure cause.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidRefresh covers every refresh failure except tenant mismatch:
	// malformed or expired tokens, unknown or already-rotated hashes, and
	// deactivated users.
	ErrInvalidRefresh = errors.New("invalid or expired refresh token")

	// ErrSessionNotFound is returned when logout names a session the user
	// does not own.
	ErrSessionNotFound = errors.New("session not found")
)

// dummyHash absorbs a bcrypt comparison when the email is unknown, so the
// failure path costs the same with and without a matching account.
const dummyHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// UserStore is the slice of the user repository the service needs
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, tenantID, email string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, userID string) error
}

// SessionStore is the slice of the session repository the service needs
type SessionStore interface {
	Upsert(ctx context.Context, session *models.Session) error
	GetByRefreshHash(ctx context.Context, refreshHash string) (*models.Session, error)
	Rotate(ctx context.Context, sessionID, oldRefreshHash, newTokenHash, newRefreshHash string, expiresAt time.Time) (bool, error)
	Revoke(ctx context.Context, sessionID, userID string) (bool, error)
	RevokeAll(ctx context.Context, userID string) (int64, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Session, error)
}

// TokenPair is the result of a successful login or refresh. SessionID is
// stable across refreshes of the same lineage.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"-"`
	SessionID        string    `json:"session_id"`
}

// LoginInput carries everything the login flow needs from the request
type LoginInput struct {
	TenantID  string
	Email     string
	Password  string
	UserAgent string
	IPAddress string
}

// RegisterInput carries a new account's fields
type RegisterInput struct {
	TenantID  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Service orchestrates authentication against the user and session stores
type Service struct {
	users    UserStore
	sessions SessionStore
	issuer   *auth.Issuer
}

// NewService creates an authentication service
func NewService(users UserStore, sessions SessionStore, issuer *auth.Issuer) *Service {
	return &Service{users: users, sessions: sessions, issuer: issuer}
}

// Login verifies credentials and opens a session. On success it returns the
// user and a fresh token pair; the refresh token's SHA-256 hash anchors the
// session row.
func (s *Service) Login(ctx context.Context, in LoginInput) (*models.User, *TokenPair, error) {
	user, err := s.users.GetByEmail(ctx, in.TenantID, in.Email)
	if err != nil {
		return nil, nil, err
	}

	hashed := dummyHash
	if user != nil {
		hashed = user.HashedPassword
	}
	if !auth.VerifyPassword(in.Password, hashed) || user == nil || !user.IsActive {
		telemetry.LoginAttemptsTotal.WithLabelValues("failure").Inc()
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.openSession(ctx, user, in.UserAgent, in.IPAddress)
	if err != nil {
		return nil, nil, err
	}

	// Best-effort; a failed stamp must not fail the login.
	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		slog.Warn("failed to update last login", "user_id", user.ID, "error", err)
	}

	telemetry.LoginAttemptsTotal.WithLabelValues("success").Inc()
	return user, pair, nil
}

func (s *Service) openSession(ctx context.Context, user *models.User, userAgent, ipAddress string) (*TokenPair, error) {
	accessToken, _, err := s.issuer.CreateAccessToken(user.ID, user.TenantID)
	if err != nil {
		return nil, err
	}
	refreshToken, _, err := s.issuer.CreateRefreshToken(user.ID, user.TenantID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	session := &models.Session{
		UserID:           user.ID,
		TenantID:         user.TenantID,
		TokenHash:        auth.HashToken(accessToken),
		RefreshTokenHash: auth.HashToken(refreshToken),
		ExpiresAt:        now.Add(s.issuer.RefreshTTL()),
	}
	if userAgent != "" {
		session.UserAgent = &userAgent
	}
	if ipAddress != "" {
		session.IPAddress = &ipAddress
	}
	if err := s.sessions.Upsert(ctx, session); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		TokenType:        "bearer",
		ExpiresAt:        now.Add(s.issuer.AccessTTL()),
		RefreshExpiresAt: session.ExpiresAt,
		SessionID:        session.ID,
	}, nil
}

// Refresh rotates a refresh token into a new token pair. The rotation UPDATE
// is guarded on the presented token's hash, so a replayed token that already
// rotated affects zero rows and is rejected. requestedTenantID, when set (the
// tenant cookie), must match the session's tenant.
func (s *Service) Refresh(ctx context.Context, refreshToken, requestedTenantID string) (*models.User, *TokenPair, error) {
	claims, err := s.issuer.DecodeType(refreshToken, auth.TokenTypeRefresh)
	if err != nil {
		return nil, nil, ErrInvalidRefresh
	}

	oldHash := auth.HashToken(refreshToken)
	session, err := s.sessions.GetByRefreshHash(ctx, oldHash)
	if err != nil {
		return nil, nil, err
	}
	if session == nil || session.UserID != claims.Subject {
		return nil, nil, ErrInvalidRefresh
	}

	if requestedTenantID != "" && requestedTenantID != session.TenantID {
		return nil, nil, auth.ErrTenantMismatch
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil || !user.IsActive {
		return nil, nil, ErrInvalidRefresh
	}

	accessToken, _, err := s.issuer.CreateAccessToken(user.ID, user.TenantID)
	if err != nil {
		return nil, nil, err
	}
	newRefreshToken, _, err := s.issuer.CreateRefreshToken(user.ID, user.TenantID)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	expiresAt := now.Add(s.issuer.RefreshTTL())
	rotated, err := s.sessions.Rotate(ctx, session.ID, oldHash,
		auth.HashToken(accessToken), auth.HashToken(newRefreshToken), expiresAt)
	if err != nil {
		return nil, nil, err
	}
	if !rotated {
		// Lost a race against a concurrent refresh of the same token.
		return nil, nil, ErrInvalidRefresh
	}

	return user, &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     newRefreshToken,
		TokenType:        "bearer",
		ExpiresAt:        now.Add(s.issuer.AccessTTL()),
		RefreshExpiresAt: expiresAt,
		SessionID:        session.ID,
	}, nil
}

// Logout revokes one of the user's sessions
func (s *Service) Logout(ctx context.Context, sessionID, userID string) error {
	revoked, err := s.sessions.Revoke(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if !revoked {
		return ErrSessionNotFound
	}
	return nil
}

// LogoutAll revokes every session the user has and returns how many
func (s *Service) LogoutAll(ctx context.Context, userID string) (int64, error) {
	return s.sessions.RevokeAll(ctx, userID)
}

// Sessions lists the user's active sessions
func (s *Service) Sessions(ctx context.Context, userID string) ([]*models.Session, error) {
	return s.sessions.ListByUser(ctx, userID)
}

// Register creates a new account in a tenant. The password is bcrypt-hashed;
// duplicate emails surface as repositories.ErrDuplicateEmail.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	hashed, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		TenantID:       in.TenantID,
		Email:          in.Email,
		HashedPassword: hashed,
		IsActive:       true,
	}
	if in.FirstName != "" {
		user.FirstName = &in.FirstName
	}
	if in.LastName != "" {
		user.LastName = &in.LastName
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
