// audit.go implements the audit log endpoints: manual entry creation,
// filtered listing, statistics, and retention cleanup.
package admin

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/admin-backend/admin-backend/internal/config"
	"github.com/admin-backend/admin-backend/internal/db/models"
	"github.com/admin-backend/admin-backend/internal/db/repositories"
	"github.com/admin-backend/admin-backend/internal/middleware"
)

// AuditHandlers handles audit log endpoints
type AuditHandlers struct {
	audits   *repositories.AuditRepository
	auditCfg config.AuditConfig
}

// NewAuditHandlers creates an AuditHandlers instance.
func NewAuditHandlers(audits *repositories.AuditRepository, auditCfg config.AuditConfig) *AuditHandlers {
	return &AuditHandlers{audits: audits, auditCfg: auditCfg}
}

// CreateAuditLogRequest represents a manually recorded audit entry
type CreateAuditLogRequest struct {
	Action       string                 `json:"action" binding:"required"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	Details      map[string]interface{} `json:"details"`
}

// @Summary      Record audit entry
// @Description  Append an audit log entry for the active tenant. Requires the audit:create permission.
// @Tags         Audit
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateAuditLogRequest  true  "Audit entry"
// @Success      201  {object}  map[string]interface{}  "entry: models.AuditLog"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Router       /api/v1/audit-logs [post]
// CreateAuditLogHandler appends an audit entry
// POST /api/v1/audit-logs
func (h *AuditHandlers) CreateAuditLogHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateAuditLogRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		ipAddress := c.ClientIP()
		entry := &models.AuditLog{
			TenantID:  middleware.EffectiveTenant(c),
			Action:    req.Action,
			Details:   req.Details,
			IPAddress: &ipAddress,
		}
		if userID := c.GetString(middleware.ContextUserIDKey); userID != "" {
			entry.UserID = &userID
		}
		if req.ResourceType != "" {
			entry.ResourceType = &req.ResourceType
		}
		if req.ResourceID != "" {
			entry.ResourceID = &req.ResourceID
		}
		if userAgent := c.Request.UserAgent(); userAgent != "" {
			entry.UserAgent = &userAgent
		}

		if err := h.audits.Create(c.Request.Context(), entry); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record audit entry"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"entry": entry})
	}
}

// @Summary      List audit logs
// @Description  Get a filtered, paginated list of the active tenant's audit logs, newest first. Requires the audit:read permission.
// @Tags         Audit
// @Security     Bearer
// @Produce      json
// @Param        user_id        query  string  false  "Filter by actor"
// @Param        action         query  string  false  "Filter by action"
// @Param        resource_type  query  string  false  "Filter by resource type"
// @Param        resource_id    query  string  false  "Filter by resource ID"
// @Param        start_date     query  string  false  "RFC3339 lower bound"
// @Param        end_date       query  string  false  "RFC3339 upper bound"
// @Param        page           query  int     false  "Page number (default 1)"
// @Param        per_page       query  int     false  "Items per page, max 100 (default 50)"
// @Success      200  {object}  map[string]interface{}  "entries: []models.AuditLog, pagination: map"
// @Failure      400  {object}  map[string]interface{}  "Invalid date filter"
// @Router       /api/v1/audit-logs [get]
// ListAuditLogsHandler lists the tenant's audit logs with filters
// GET /api/v1/audit-logs
func (h *AuditHandlers) ListAuditLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "50"))
		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > 100 {
			perPage = 50
		}
		offset := (page - 1) * perPage

		var filters repositories.AuditFilters
		if v := c.Query("user_id"); v != "" {
			filters.UserID = &v
		}
		if v := c.Query("action"); v != "" {
			filters.Action = &v
		}
		if v := c.Query("resource_type"); v != "" {
			filters.ResourceType = &v
		}
		if v := c.Query("resource_id"); v != "" {
			filters.ResourceID = &v
		}
		if v := c.Query("start_date"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "start_date must be RFC3339"})
				return
			}
			filters.StartDate = &t
		}
		if v := c.Query("end_date"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must be RFC3339"})
				return
			}
			filters.EndDate = &t
		}

		entries, total, err := h.audits.ListByTenant(c.Request.Context(), middleware.EffectiveTenant(c), filters, perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list audit logs"})
			return
		}
		if entries == nil {
			entries = []*models.AuditLog{}
		}

		c.JSON(http.StatusOK, gin.H{
			"entries": entries,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// @Summary      Audit statistics
// @Description  Summarise the active tenant's audit activity: totals, last-24h count, top 10 actions. Requires the audit:read permission.
// @Tags         Audit
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  models.AuditStatistics
// @Router       /api/v1/audit-logs/statistics [get]
// StatisticsHandler summarises the tenant's audit activity
// GET /api/v1/audit-logs/statistics
func (h *AuditHandlers) StatisticsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := h.audits.GetStatistics(c.Request.Context(), middleware.EffectiveTenant(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute audit statistics"})
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

// @Summary      Audit cleanup
// @Description  Delete audit entries older than the given number of days (default: the configured retention). Requires the audit:admin permission.
// @Tags         Audit
// @Security     Bearer
// @Produce      json
// @Param        days  query  int  false  "Retention window in days"
// @Success      200  {object}  map[string]interface{}  "deleted: count"
// @Failure      400  {object}  map[string]interface{}  "Invalid days parameter"
// @Router       /api/v1/audit-logs/cleanup [delete]
// CleanupHandler deletes audit entries past the retention window
// DELETE /api/v1/audit-logs/cleanup?days=90
func (h *AuditHandlers) CleanupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		days := h.auditCfg.RetentionDays
		if days <= 0 {
			days = 90
		}
		if v := c.Query("days"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
				return
			}
			days = parsed
		}

		cutoff := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
		deleted, err := h.audits.DeleteOlderThan(c.Request.Context(), cutoff)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Cleanup failed"})
			return
		}

		c.Set(middleware.AuditActionKey, "audit.cleanup")
		c.Set(middleware.AuditDetailsKey, map[string]interface{}{
			"days":    days,
			"deleted": deleted,
		})
		c.JSON(http.StatusOK, gin.H{"deleted": deleted})
	}
}
