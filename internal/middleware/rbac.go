// Package middleware (rbac.go) implements tenant scoping and permission
// checks.
//
// Permissions are resolved at request time rather than being embedded in the
// JWT. This is a deliberate design choice: when a role's permission list
// changes, the change takes effect on the holder's next request without
// invalidating or reissuing their token. The resolver's cache keeps the
// per-request cost to one Redis round-trip in the common case.
//
// Two distinct escalation mechanisms exist and must not be conflated. The
// wildcard permission "*" is the only thing that passes every permission
// check, and it stays confined to the holder's own tenant. The superadmin
// role name is what crosses tenant boundaries; it carries no implicit
// permissions of its own. Denied cross-tenant access is always 403, never 404.

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/admin-backend/admin-backend/internal/auth"
	"github.com/admin-backend/admin-backend/internal/rbac"
)

// TenantAccessMiddleware resolves the tenant a request operates on and
// enforces the boundary. The requested tenant comes from the tenant_id query
// parameter or, failing that, the tenant cookie; with neither present the
// request stays in the user's home tenant. Only superadmins may address a
// tenant other than their own.
func TenantAccessMiddleware(resolver *rbac.Resolver, tenantCookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(ContextUserIDKey)
		homeTenant := c.GetString(ContextUserTenantKey)
		if userID == "" || homeTenant == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		requested := c.Query("tenant_id")
		if requested == "" {
			if cookie, err := c.Cookie(tenantCookieName); err == nil {
				requested = cookie
			}
		}
		if requested == "" || requested == homeTenant {
			c.Set(ContextTenantKey, homeTenant)
			c.Next()
			return
		}

		roleNames, err := resolver.UserRoleNames(c.Request.Context(), homeTenant, userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to resolve roles",
			})
			return
		}
		if err := auth.ValidateTenantAccess(homeTenant, roleNames, requested); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Access to this tenant is not allowed",
			})
			return
		}

		c.Set(ContextTenantKey, requested)
		c.Next()
	}
}

// RequirePermission checks that the authenticated user holds the given
// permission or the wildcard among their unexpired roles. The permission set
// is the only thing consulted: the superadmin role name crosses tenant
// boundaries but grants nothing here unless its permission list says so.
func RequirePermission(resolver *rbac.Resolver, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(ContextUserIDKey)
		homeTenant := c.GetString(ContextUserTenantKey)
		if userID == "" || homeTenant == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		ok, err := resolver.HasPermission(c.Request.Context(), homeTenant, userID, permission)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to resolve permissions",
			})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Insufficient permissions",
				"details": "Required permission: " + permission,
			})
			return
		}

		c.Next()
	}
}

// RequireAnyPermission checks that the user holds at least one of the given
// permissions
func RequireAnyPermission(resolver *rbac.Resolver, permissions ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(ContextUserIDKey)
		homeTenant := c.GetString(ContextUserTenantKey)
		if userID == "" || homeTenant == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		set, err := resolver.UserPermissions(c.Request.Context(), homeTenant, userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to resolve permissions",
			})
			return
		}
		if !set.HasAny(permissions...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Insufficient permissions",
			})
			return
		}

		c.Next()
	}
}
