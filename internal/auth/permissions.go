// Package auth - permissions.go defines the permission string constants used
// by the API surface and the PermissionSet type that centralises the
// has-permission decision, including the wildcard.
package auth

import "sort"

// Wildcard grants every permission. It affects permission checks only; the
// cross-tenant bypass is a separate mechanism (see tenant.go).
const Wildcard = "*"

// Permission constants for all backend resources. Roles store these as plain
// strings so new permissions need no migration, but handlers should reference
// the constants.
const (
	PermTenantsList   = "tenants:list"
	PermTenantsRead   = "tenants:read"
	PermTenantsCreate = "tenants:create"

	PermRolesCreate = "roles:create"
	PermRolesDelete = "roles:delete"
	PermRolesAssign = "roles:assign"

	PermUsersRead = "users:read"

	PermAuditRead   = "audit:read"
	PermAuditCreate = "audit:create"
	PermAuditAdmin  = "audit:admin"
)

// PermissionSet is a deduplicated set of permission strings with O(1) lookup.
// The zero value is an empty set that grants nothing.
type PermissionSet struct {
	members  map[string]struct{}
	wildcard bool
}

// NewPermissionSet builds a set from flattened role permissions. Duplicates
// and empty strings are dropped.
func NewPermissionSet(perms []string) PermissionSet {
	set := PermissionSet{members: make(map[string]struct{}, len(perms))}
	for _, p := range perms {
		if p == "" {
			continue
		}
		if p == Wildcard {
			set.wildcard = true
		}
		set.members[p] = struct{}{}
	}
	return set
}

// Has reports whether the set grants the permission, either explicitly or via
// the wildcard. This is the single authorization decision point; callers must
// not re-implement the wildcard check.
func (s PermissionSet) Has(permission string) bool {
	if s.wildcard {
		return true
	}
	_, ok := s.members[permission]
	return ok
}

// HasAny reports whether the set grants at least one of the permissions.
func (s PermissionSet) HasAny(permissions ...string) bool {
	for _, p := range permissions {
		if s.Has(p) {
			return true
		}
	}
	return false
}

// HasAll reports whether the set grants every one of the permissions.
func (s PermissionSet) HasAll(permissions ...string) bool {
	for _, p := range permissions {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

// Values returns the set's members sorted, suitable for caching and for
// stable API responses.
func (s PermissionSet) Values() []string {
	out := make([]string, 0, len(s.members))
	for p := range s.members {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of distinct permissions in the set.
func (s PermissionSet) Len() int { return len(s.members) }
