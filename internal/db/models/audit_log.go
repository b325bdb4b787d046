// Package models - audit_log.go defines the AuditLog model for recording
// security-relevant events, capturing actor, action, affected resource,
// client IP, and arbitrary details. Rows are append-only.
package models

import "time"

// AuditLog represents an audit log entry for tracking user actions
type AuditLog struct {
	ID           string                 `db:"id" json:"id"`
	TenantID     string                 `db:"tenant_id" json:"tenant_id"`
	UserID       *string                `db:"user_id" json:"user_id,omitempty"` // nullable for system actions
	Action       string                 `db:"action" json:"action"`             // "auth.login", "role.assign", "tenant.create"
	ResourceType *string                `db:"resource_type" json:"resource_type,omitempty"`
	ResourceID   *string                `db:"resource_id" json:"resource_id,omitempty"`
	Details      map[string]interface{} `db:"details" json:"details,omitempty"` // JSONB: additional context
	IPAddress    *string                `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent    *string                `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt    time.Time              `db:"created_at" json:"created_at"`
}

// AuditStatistics summarises a tenant's audit activity
type AuditStatistics struct {
	TotalEntries   int64            `json:"total_entries"`
	EntriesLast24h int64            `json:"entries_last_24h"`
	CountsByAction map[string]int64 `json:"counts_by_action"` // top 10 actions
}
