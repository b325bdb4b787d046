// Package models - role.go defines the Role and UserRole models for RBAC.
// A role is a named set of flat permission strings; assignment rows may carry
// an expiry after which the role no longer contributes permissions.
package models

import "time"

// Role represents a named permission set. TenantID is nil for system roles,
// which are visible to every tenant and cannot be deleted through the API.
type Role struct {
	ID          string    `db:"id" json:"id"`
	TenantID    *string   `db:"tenant_id" json:"tenant_id,omitempty"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	Permissions []string  `db:"permissions" json:"permissions"` // JSONB array; "*" grants everything
	IsSystem    bool      `db:"is_system" json:"is_system"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// UserRole represents one role assignment. A nil ExpiresAt never expires; a
// past ExpiresAt leaves the row in place but excludes it from permission
// resolution. AssignedBy records who made the grant and is nil when the
// granting user has since been deleted.
type UserRole struct {
	ID         string     `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"user_id"`
	RoleID     string     `db:"role_id" json:"role_id"`
	AssignedBy *string    `db:"assigned_by" json:"assigned_by,omitempty"`
	AssignedAt time.Time  `db:"assigned_at" json:"assigned_at"`
	ExpiresAt  *time.Time `db:"expires_at" json:"expires_at,omitempty"`
}
