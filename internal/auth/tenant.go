// Package auth - tenant.go implements the tenant access guard. Tenant
// isolation is decided by role NAME, not by permission strings: only the
// superadmin role crosses tenant boundaries, and the permission wildcard
// deliberately does not.
package auth

// SuperadminRole is the role name that bypasses tenant isolation. The match
// is exact and case-sensitive.
const SuperadminRole = "superadmin"

// IsSuperadmin reports whether any of the role names is the superadmin role.
func IsSuperadmin(roleNames []string) bool {
	for _, name := range roleNames {
		if name == SuperadminRole {
			return true
		}
	}
	return false
}

// ValidateTenantAccess returns nil when the user may act on the requested
// tenant: either it is their own tenant, or they hold the superadmin role.
// Everything else is ErrTenantMismatch, which handlers map to 403 — never 404,
// so the caller cannot probe which tenant IDs exist.
func ValidateTenantAccess(userTenantID string, roleNames []string, requestedTenantID string) error {
	if requestedTenantID == "" || requestedTenantID == userTenantID {
		return nil
	}
	if IsSuperadmin(roleNames) {
		return nil
	}
	return ErrTenantMismatch
}
