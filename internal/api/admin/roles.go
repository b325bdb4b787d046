// roles.go implements role management and role assignment. Every mutation
// invalidates the permission cache before responding, so the next permission
// check recomputes from the database.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/admin-backend/admin-backend/internal/db/models"
	"github.com/admin-backend/admin-backend/internal/db/repositories"
	"github.com/admin-backend/admin-backend/internal/middleware"
	"github.com/admin-backend/admin-backend/internal/rbac"
)

// RoleHandlers handles role CRUD and user-role assignment endpoints
type RoleHandlers struct {
	roles    *repositories.RoleRepository
	users    *repositories.UserRepository
	resolver *rbac.Resolver
}

// NewRoleHandlers creates a RoleHandlers instance.
func NewRoleHandlers(roles *repositories.RoleRepository, users *repositories.UserRepository, resolver *rbac.Resolver) *RoleHandlers {
	return &RoleHandlers{roles: roles, users: users, resolver: resolver}
}

// CreateRoleRequest represents the request to create a role
type CreateRoleRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions" binding:"required"`
}

// @Summary      Create role
// @Description  Create a tenant role. Requires the roles:create permission. Role names are unique within the tenant.
// @Tags         Roles
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateRoleRequest  true  "Role creation request"
// @Success      201  {object}  map[string]interface{}  "role: models.Role"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      409  {object}  map[string]interface{}  "Role with this name already exists"
// @Router       /api/v1/roles [post]
// CreateRoleHandler creates a role in the active tenant
// POST /api/v1/roles
func (h *RoleHandlers) CreateRoleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRoleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		tenantID := middleware.EffectiveTenant(c)

		existing, err := h.roles.GetByName(c.Request.Context(), tenantID, req.Name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create role"})
			return
		}
		if existing != nil && existing.TenantID != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "Role with this name already exists"})
			return
		}

		role := &models.Role{
			TenantID:    &tenantID,
			Name:        req.Name,
			Permissions: req.Permissions,
		}
		if req.Description != "" {
			role.Description = &req.Description
		}
		if err := h.roles.Create(c.Request.Context(), role); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create role"})
			return
		}

		// A new role shadows any same-named system role tenant-wide.
		h.resolver.InvalidateTenantRoles(c.Request.Context(), tenantID, role.ID)

		c.Set(middleware.AuditActionKey, "role.create")
		c.Set(middleware.AuditResourceIDKey, role.ID)
		c.JSON(http.StatusCreated, gin.H{"role": role})
	}
}

// @Summary      List roles
// @Description  List the roles visible to the active tenant: its own roles plus the system roles.
// @Tags         Roles
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "roles: []models.Role"
// @Router       /api/v1/roles [get]
// ListRolesHandler lists tenant and system roles
// GET /api/v1/roles
func (h *RoleHandlers) ListRolesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		roles, err := h.roles.ListForTenant(c.Request.Context(), middleware.EffectiveTenant(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list roles"})
			return
		}
		if roles == nil {
			roles = []*models.Role{}
		}
		c.JSON(http.StatusOK, gin.H{"roles": roles})
	}
}

// @Summary      Delete role
// @Description  Delete a tenant role. System roles cannot be deleted. Requires the roles:delete permission.
// @Tags         Roles
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Role ID"
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      403  {object}  map[string]interface{}  "System roles cannot be deleted"
// @Failure      404  {object}  map[string]interface{}  "Role not found"
// @Router       /api/v1/roles/{id} [delete]
// DeleteRoleHandler deletes a tenant role
// DELETE /api/v1/roles/:id
func (h *RoleHandlers) DeleteRoleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		roleID := c.Param("id")
		tenantID := middleware.EffectiveTenant(c)

		role, err := h.roles.GetByID(c.Request.Context(), roleID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete role"})
			return
		}
		// A role in another tenant is invisible here.
		if role == nil || (role.TenantID != nil && *role.TenantID != tenantID) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Role not found"})
			return
		}
		if role.IsSystem {
			c.JSON(http.StatusForbidden, gin.H{"error": "System roles cannot be deleted"})
			return
		}

		deleted, err := h.roles.Delete(c.Request.Context(), roleID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete role"})
			return
		}
		if !deleted {
			c.JSON(http.StatusNotFound, gin.H{"error": "Role not found"})
			return
		}

		// Unknown set of affected users, so the whole tenant is invalidated.
		h.resolver.InvalidateTenantRoles(c.Request.Context(), tenantID, roleID)

		c.Set(middleware.AuditActionKey, "role.delete")
		c.Set(middleware.AuditResourceIDKey, roleID)
		c.JSON(http.StatusOK, gin.H{"message": "Role deleted"})
	}
}

// AssignRoleRequest represents the request to assign a role to a user
type AssignRoleRequest struct {
	RoleID    string     `json:"role_id" binding:"required"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// @Summary      Assign role
// @Description  Assign a role to a user in the active tenant. Re-assigning updates the expiry. Requires the roles:assign permission.
// @Tags         Roles
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string             true  "User ID"
// @Param        body  body  AssignRoleRequest  true  "Role assignment request"
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      404  {object}  map[string]interface{}  "User or role not found"
// @Router       /api/v1/users/{id}/roles [post]
// AssignRoleHandler assigns a role to a user
// POST /api/v1/users/:id/roles
func (h *RoleHandlers) AssignRoleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")
		var req AssignRoleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		tenantID := middleware.EffectiveTenant(c)

		user, err := h.users.GetByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to assign role"})
			return
		}
		if user == nil || user.TenantID != tenantID {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		role, err := h.roles.GetByID(c.Request.Context(), req.RoleID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to assign role"})
			return
		}
		// Assignable roles: the tenant's own plus system roles.
		if role == nil || (role.TenantID != nil && *role.TenantID != tenantID) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Role not found"})
			return
		}

		assignedBy := c.GetString(middleware.ContextUserIDKey)
		if err := h.roles.Assign(c.Request.Context(), userID, role.ID, assignedBy, req.ExpiresAt); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to assign role"})
			return
		}

		h.resolver.InvalidateUser(c.Request.Context(), tenantID, userID)

		c.Set(middleware.AuditActionKey, "role.assign")
		c.Set(middleware.AuditResourceIDKey, role.ID)
		c.Set(middleware.AuditDetailsKey, map[string]interface{}{
			"user_id": userID,
			"role_id": role.ID,
		})
		c.JSON(http.StatusOK, gin.H{"message": "Role assigned"})
	}
}

// @Summary      Remove role
// @Description  Remove a role assignment from a user in the active tenant. Requires the roles:assign permission.
// @Tags         Roles
// @Security     Bearer
// @Produce      json
// @Param        id       path  string  true  "User ID"
// @Param        role_id  path  string  true  "Role ID"
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      404  {object}  map[string]interface{}  "User or assignment not found"
// @Router       /api/v1/users/{id}/roles/{role_id} [delete]
// RemoveRoleHandler removes a role assignment from a user
// DELETE /api/v1/users/:id/roles/:role_id
func (h *RoleHandlers) RemoveRoleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")
		roleID := c.Param("role_id")
		tenantID := middleware.EffectiveTenant(c)

		user, err := h.users.GetByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove role"})
			return
		}
		if user == nil || user.TenantID != tenantID {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		removed, err := h.roles.Remove(c.Request.Context(), userID, roleID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove role"})
			return
		}
		if !removed {
			c.JSON(http.StatusNotFound, gin.H{"error": "Role assignment not found"})
			return
		}

		h.resolver.InvalidateUser(c.Request.Context(), tenantID, userID)

		c.Set(middleware.AuditActionKey, "role.remove")
		c.Set(middleware.AuditResourceIDKey, roleID)
		c.Set(middleware.AuditDetailsKey, map[string]interface{}{
			"user_id": userID,
			"role_id": roleID,
		})
		c.JSON(http.StatusOK, gin.H{"message": "Role removed"})
	}
}
