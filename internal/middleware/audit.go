// audit.go provides Gin middleware that records authenticated operations to
// the append-only audit log. Writes happen after the response on a detached
// goroutine so audit persistence never adds latency to the request, and a
// failed write never fails the request it describes.
package middleware

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/admin-backend/admin-backend/internal/config"
	"github.com/admin-backend/admin-backend/internal/db/models"
	"github.com/admin-backend/admin-backend/internal/db/repositories"
	"github.com/admin-backend/admin-backend/internal/safego"
	"github.com/admin-backend/admin-backend/internal/telemetry"
)

// Context keys handlers may set to enrich the audit entry for their route.
const (
	// AuditActionKey overrides the derived "METHOD /path" action with a
	// semantic one like "auth.login" or "role.assign".
	AuditActionKey = "audit_action"

	// AuditResourceIDKey names the specific resource the handler touched.
	AuditResourceIDKey = "audit_resource_id"

	// AuditDetailsKey carries a map[string]interface{} of extra context.
	AuditDetailsKey = "audit_details"
)

const auditWriteTimeout = 5 * time.Second

// AuditMiddleware records requests to the audit log according to the config:
// by default only successful writes, optionally reads and failures too.
// Requests with no tenant in context (unauthenticated failures) are skipped
// because every audit row belongs to a tenant.
func AuditMiddleware(auditRepo *repositories.AuditRepository, auditCfg config.AuditConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if !auditCfg.Enabled || c.Request.Method == "OPTIONS" {
			return
		}

		isRead := c.Request.Method == "GET"
		isFailed := c.Writer.Status() >= 400
		if isRead && !auditCfg.LogReadOperations {
			return
		}
		if isFailed && !auditCfg.LogFailedRequests {
			return
		}

		tenantID := EffectiveTenant(c)
		if tenantID == "" {
			return
		}

		entry := buildAuditEntry(c, tenantID)

		// Fire-and-forget with its own context: the request context is done
		// once the response is written.
		safego.Go("audit-write", func() {
			ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
			defer cancel()
			if err := auditRepo.Create(ctx, entry); err != nil {
				telemetry.AuditWriteFailuresTotal.Inc()
				slog.Error("failed to write audit log", "action", entry.Action, "error", err)
			}
		})
	}
}

func buildAuditEntry(c *gin.Context, tenantID string) *models.AuditLog {
	action := c.Request.Method + " " + c.Request.URL.Path
	if override := c.GetString(AuditActionKey); override != "" {
		action = override
	}

	ipAddress := c.ClientIP()
	userAgent := c.Request.UserAgent()

	entry := &models.AuditLog{
		TenantID:  tenantID,
		Action:    action,
		IPAddress: &ipAddress,
	}
	if userAgent != "" {
		entry.UserAgent = &userAgent
	}

	if userID := c.GetString(ContextUserIDKey); userID != "" {
		entry.UserID = &userID
	}

	if resourceType := resourceTypeFromPath(c.Request.URL.Path); resourceType != "" {
		entry.ResourceType = &resourceType
	}
	if resourceID := c.GetString(AuditResourceIDKey); resourceID != "" {
		entry.ResourceID = &resourceID
	}

	details := map[string]interface{}{
		"status_code": c.Writer.Status(),
	}
	if requestID := c.GetString(RequestIDKey); requestID != "" {
		details["request_id"] = requestID
	}
	if extra, ok := c.Get(AuditDetailsKey); ok {
		if m, ok := extra.(map[string]interface{}); ok {
			for k, v := range m {
				details[k] = v
			}
		}
	}
	entry.Details = details

	return entry
}

// resourceTypeFromPath derives the audited resource type from the route
func resourceTypeFromPath(path string) string {
	switch {
	case strings.Contains(path, "/auth/"):
		return "session"
	case strings.Contains(path, "/tenants"):
		return "tenant"
	case strings.Contains(path, "/roles"):
		return "role"
	case strings.Contains(path, "/users"):
		return "user"
	case strings.Contains(path, "/audit-logs"):
		return "audit_log"
	default:
		return ""
	}
}
