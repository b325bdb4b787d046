// Package models - session.go defines the Session model. Sessions store only
// SHA-256 digests of the tokens they track; the tokens themselves exist
// nowhere server-side.
package models

import "time"

// Session represents one refresh-token lineage for a user. Rotation updates
// the hashes in place, so the row ID is stable across refreshes and can be
// handed to clients as a session identifier.
type Session struct {
	ID               string    `db:"id" json:"id"`
	UserID           string    `db:"user_id" json:"user_id"`
	TenantID         string    `db:"tenant_id" json:"tenant_id"`
	TokenHash        string    `db:"token_hash" json:"-"`
	RefreshTokenHash string    `db:"refresh_token_hash" json:"-"`
	UserAgent        *string   `db:"user_agent" json:"user_agent,omitempty"`
	IPAddress        *string   `db:"ip_address" json:"ip_address,omitempty"`
	ExpiresAt        time.Time `db:"expires_at" json:"expires_at"`
	LastActivity     time.Time `db:"last_activity" json:"last_activity"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}
