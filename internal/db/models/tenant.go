// Package models - tenant.go defines the Tenant model, the isolation root that
// every user, role, session, and audit entry hangs off.
package models

import "time"

// Tenant represents an isolated customer organization
type Tenant struct {
	ID               string                 `db:"id" json:"id"`
	Name             string                 `db:"name" json:"name"`
	Domain           *string                `db:"domain" json:"domain,omitempty"` // unique when set; creation is idempotent by domain
	Settings         map[string]interface{} `db:"settings" json:"settings,omitempty"`
	SubscriptionTier string                 `db:"subscription_tier" json:"subscription_tier"`
	IsActive         bool                   `db:"is_active" json:"is_active"`
	CreatedAt        time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time              `db:"updated_at" json:"updated_at"`
}
