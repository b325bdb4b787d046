// session_repository.go implements SessionRepository. Sessions track token
// lineages by SHA-256 hash only. Rotation is guarded: the UPDATE matches both
// the session ID and the presented refresh hash, so a replayed refresh token
// that lost the race affects zero rows and the caller treats it as invalid.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/admin-backend/admin-backend/internal/db/models"
)

// SessionRepository handles database operations for sessions
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, user_id, tenant_id, token_hash, refresh_token_hash, user_agent, ip_address, expires_at, last_activity, created_at`

func scanSession(row interface {
	Scan(dest ...interface{}) error
}) (*models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.UserID, &s.TenantID, &s.TokenHash, &s.RefreshTokenHash,
		&s.UserAgent, &s.IPAddress, &s.ExpiresAt, &s.LastActivity, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Upsert stores a session keyed by its refresh token hash. Logins normally
// insert a fresh row; if the same refresh hash is ever written twice the
// existing row is updated in place rather than violating the unique index.
func (r *SessionRepository) Upsert(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	session.LastActivity = now
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}

	query := `INSERT INTO sessions (id, user_id, tenant_id, token_hash, refresh_token_hash, user_agent, ip_address, expires_at, last_activity, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			  ON CONFLICT (refresh_token_hash) DO UPDATE SET
				  token_hash = EXCLUDED.token_hash,
				  user_agent = EXCLUDED.user_agent,
				  ip_address = EXCLUDED.ip_address,
				  expires_at = EXCLUDED.expires_at,
				  last_activity = EXCLUDED.last_activity`

	_, err := r.db.ExecContext(ctx, query,
		session.ID, session.UserID, session.TenantID, session.TokenHash, session.RefreshTokenHash,
		session.UserAgent, session.IPAddress, session.ExpiresAt, session.LastActivity, session.CreatedAt)
	return err
}

// GetByRefreshHash retrieves the unexpired session holding the given refresh
// token hash
func (r *SessionRepository) GetByRefreshHash(ctx context.Context, refreshHash string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
			  WHERE refresh_token_hash = $1 AND expires_at > now()`

	session, err := scanSession(r.db.QueryRowContext(ctx, query, refreshHash))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// GetByID retrieves a session by ID regardless of expiry
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	session, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Rotate swaps a session's token hashes in one guarded update. It reports
// false when the session no longer holds oldRefreshHash, which means the
// presented refresh token was already rotated or revoked.
func (r *SessionRepository) Rotate(ctx context.Context, sessionID, oldRefreshHash, newTokenHash, newRefreshHash string, expiresAt time.Time) (bool, error) {
	query := `UPDATE sessions
			  SET token_hash = $3, refresh_token_hash = $4, expires_at = $5, last_activity = now()
			  WHERE id = $1 AND refresh_token_hash = $2`

	result, err := r.db.ExecContext(ctx, query, sessionID, oldRefreshHash, newTokenHash, newRefreshHash, expiresAt)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Revoke deletes one session owned by the given user, reporting whether it
// existed
func (r *SessionRepository) Revoke(ctx context.Context, sessionID, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1 AND user_id = $2`, sessionID, userID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// RevokeAll deletes every session belonging to a user and returns how many
// were removed
func (r *SessionRepository) RevokeAll(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ListByUser returns the user's unexpired sessions, most recently active first
func (r *SessionRepository) ListByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
			  WHERE user_id = $1 AND expires_at > now()
			  ORDER BY last_activity DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

// DeleteExpired removes sessions past their expiry and returns how many were
// deleted
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
