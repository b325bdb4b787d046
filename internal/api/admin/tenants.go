// tenants.go implements tenant management: idempotent creation, listing, and
// retrieval.
package admin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/admin-backend/admin-backend/internal/db/models"
	"github.com/admin-backend/admin-backend/internal/db/repositories"
	"github.com/admin-backend/admin-backend/internal/middleware"
)

// TenantHandlers handles tenant management endpoints
type TenantHandlers struct {
	tenants *repositories.TenantRepository
}

// NewTenantHandlers creates a TenantHandlers instance.
func NewTenantHandlers(tenants *repositories.TenantRepository) *TenantHandlers {
	return &TenantHandlers{tenants: tenants}
}

// CreateTenantRequest represents the request to create a tenant
type CreateTenantRequest struct {
	Name             string                 `json:"name" binding:"required"`
	Domain           string                 `json:"domain"`
	Settings         map[string]interface{} `json:"settings"`
	SubscriptionTier string                 `json:"subscription_tier"`
}

// @Summary      Create tenant
// @Description  Create a tenant. Creation is idempotent by domain: re-creating an existing domain returns the existing tenant with 200 instead of 201.
// @Tags         Tenants
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateTenantRequest  true  "Tenant creation request"
// @Success      201  {object}  map[string]interface{}  "tenant (newly created)"
// @Success      200  {object}  map[string]interface{}  "tenant (already existed)"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Router       /api/v1/tenants [post]
// CreateTenantHandler creates a tenant, idempotently by domain
// POST /api/v1/tenants
func (h *TenantHandlers) CreateTenantHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateTenantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		tenant := &models.Tenant{
			Name:             req.Name,
			Settings:         req.Settings,
			SubscriptionTier: req.SubscriptionTier,
			IsActive:         true,
		}
		if req.Domain != "" {
			tenant.Domain = &req.Domain
		}

		tenant, created, err := h.tenants.Create(c.Request.Context(), tenant)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create tenant"})
			return
		}

		c.Set(middleware.AuditActionKey, "tenant.create")
		c.Set(middleware.AuditResourceIDKey, tenant.ID)

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		c.JSON(status, gin.H{"tenant": tenant, "created": created})
	}
}

// @Summary      List tenants
// @Description  Get a paginated list of tenants. Requires the tenants:list permission.
// @Tags         Tenants
// @Security     Bearer
// @Produce      json
// @Param        page      query  int  false  "Page number (default 1)"
// @Param        per_page  query  int  false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "tenants: []models.Tenant, pagination: map"
// @Router       /api/v1/tenants [get]
// ListTenantsHandler lists tenants with pagination
// GET /api/v1/tenants?page=1&per_page=20
func (h *TenantHandlers) ListTenantsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > 100 {
			perPage = 20
		}
		offset := (page - 1) * perPage

		tenants, total, err := h.tenants.List(c.Request.Context(), perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list tenants"})
			return
		}
		if tenants == nil {
			tenants = []*models.Tenant{}
		}

		c.JSON(http.StatusOK, gin.H{
			"tenants": tenants,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// @Summary      Get tenant
// @Description  Get a tenant by ID. The ID must be the caller's active tenant; superadmins switch tenants via the tenant_id query parameter.
// @Tags         Tenants
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Tenant ID"
// @Success      200  {object}  map[string]interface{}  "tenant: models.Tenant"
// @Failure      403  {object}  map[string]interface{}  "Access to this tenant is not allowed"
// @Failure      404  {object}  map[string]interface{}  "Tenant not found"
// @Router       /api/v1/tenants/{id} [get]
// GetTenantHandler retrieves a tenant by ID
// GET /api/v1/tenants/:id
func (h *TenantHandlers) GetTenantHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.Param("id")

		// The tenant guard already resolved the caller's effective tenant;
		// reading any other tenant's record is a cross-tenant access.
		if tenantID != middleware.EffectiveTenant(c) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Access to this tenant is not allowed"})
			return
		}

		tenant, err := h.tenants.GetByID(c.Request.Context(), tenantID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve tenant"})
			return
		}
		if tenant == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"tenant": tenant})
	}
}
