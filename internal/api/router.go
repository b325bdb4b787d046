// Package api wires together all HTTP routes for the admin backend.
//
// Route grouping philosophy:
//   - /api/v1/auth login, refresh, and register are public but carry the
//     strict auth rate limit, since they are the credential-guessing surface.
//   - Everything else under /api/v1 requires a bearer token, passes the
//     tenant access guard, and is audited.
//
// Per-route permission requirements are attached at registration so the route
// table doubles as the authorization matrix.
package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/admin-backend/admin-backend/internal/api/admin"
	"github.com/admin-backend/admin-backend/internal/auth"
	"github.com/admin-backend/admin-backend/internal/authflow"
	"github.com/admin-backend/admin-backend/internal/cache"
	"github.com/admin-backend/admin-backend/internal/config"
	"github.com/admin-backend/admin-backend/internal/db/repositories"
	"github.com/admin-backend/admin-backend/internal/jobs"
	"github.com/admin-backend/admin-backend/internal/middleware"
	"github.com/admin-backend/admin-backend/internal/rbac"
)

// BackgroundServices holds background jobs and resources that must be stopped
// during graceful shutdown. The caller (cmd/server) calls Shutdown() once the
// HTTP server has drained.
type BackgroundServices struct {
	retentionJob *jobs.RetentionJob
	rateLimiters []middleware.Limiter
}

// Shutdown stops all background goroutines.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.retentionJob != nil {
		bg.retentionJob.Stop()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router. cacheClient may be nil,
// which disables the permission cache and falls back to in-memory rate
// limiting.
func NewRouter(cfg *config.Config, db *sql.DB, cacheClient *cache.Client, issuer *auth.Issuer) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	// Repositories
	tenantRepo := repositories.NewTenantRepository(db)
	userRepo := repositories.NewUserRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	roleRepo := repositories.NewRoleRepository(sqlx.NewDb(db, "postgres"))

	// Domain services
	resolver := rbac.NewResolver(roleRepo, cacheClient)
	authSvc := authflow.NewService(userRepo, sessionRepo, issuer)

	// Rate limiters: the shared Redis budget when the cache connection is up,
	// per-process token buckets otherwise.
	generalCfg := middleware.DefaultRateLimitConfig()
	if cfg.Security.RateLimiting.RequestsPerMinute > 0 {
		generalCfg.RequestsPerMinute = cfg.Security.RateLimiting.RequestsPerMinute
	}
	if cfg.Security.RateLimiting.Burst > 0 {
		generalCfg.BurstSize = cfg.Security.RateLimiting.Burst
	}
	var generalLimiter, authLimiter middleware.Limiter
	if cacheClient.Enabled() {
		generalLimiter = middleware.NewRedisRateLimiter(cacheClient.Redis(), generalCfg)
		authLimiter = middleware.NewRedisRateLimiter(cacheClient.Redis(), middleware.AuthRateLimitConfig())
	} else {
		generalLimiter = middleware.NewRateLimiter(generalCfg)
		authLimiter = middleware.NewRateLimiter(middleware.AuthRateLimitConfig())
	}

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.SecurityHeadersFromConfig(cfg.Security.Headers)))
	router.Use(middleware.CORSMiddleware(cfg.Security.CORS))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())

	// Health and readiness probes
	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, cacheClient))

	// Handlers
	authHandlers := admin.NewAuthHandlers(cfg, authSvc, resolver, tenantRepo)
	tenantHandlers := admin.NewTenantHandlers(tenantRepo)
	roleHandlers := admin.NewRoleHandlers(roleRepo, userRepo, resolver)
	userHandlers := admin.NewUserHandlers(userRepo)
	auditHandlers := admin.NewAuditHandlers(auditRepo, cfg.Audit)

	apiV1 := router.Group("/api/v1")
	{
		// Public credential endpoints; strictly rate limited and audited
		// (the handlers plant the identity keys the audit entry needs).
		authGroup := apiV1.Group("/auth")
		if cfg.Security.RateLimiting.Enabled {
			authGroup.Use(middleware.RateLimitMiddleware(authLimiter))
		}
		authGroup.Use(middleware.AuditMiddleware(auditRepo, cfg.Audit))
		{
			authGroup.POST("/login", authHandlers.LoginHandler())
			authGroup.POST("/refresh", authHandlers.RefreshHandler())
			authGroup.POST("/register", authHandlers.RegisterHandler())
		}

		// Authenticated endpoints: RateLimit → Auth → TenantAccess → Audit,
		// then per-route permission checks.
		authed := apiV1.Group("")
		if cfg.Security.RateLimiting.Enabled {
			authed.Use(middleware.RateLimitMiddleware(generalLimiter))
		}
		authed.Use(middleware.AuthMiddleware(issuer, userRepo))
		authed.Use(middleware.TenantAccessMiddleware(resolver, cfg.Auth.TenantCookieName))
		authed.Use(middleware.AuditMiddleware(auditRepo, cfg.Audit))
		{
			// Session management (any authenticated user)
			authed.POST("/auth/logout", authHandlers.LogoutHandler())
			authed.POST("/auth/logout-all", authHandlers.LogoutAllHandler())
			authed.GET("/auth/sessions", authHandlers.SessionsHandler())

			// Tenants
			authed.POST("/tenants",
				middleware.RequirePermission(resolver, "tenants:create"),
				tenantHandlers.CreateTenantHandler())
			authed.GET("/tenants",
				middleware.RequirePermission(resolver, "tenants:list"),
				tenantHandlers.ListTenantsHandler())
			authed.GET("/tenants/:id",
				middleware.RequirePermission(resolver, "tenants:read"),
				tenantHandlers.GetTenantHandler())

			// Roles
			authed.POST("/roles",
				middleware.RequirePermission(resolver, "roles:create"),
				roleHandlers.CreateRoleHandler())
			authed.GET("/roles", roleHandlers.ListRolesHandler())
			authed.DELETE("/roles/:id",
				middleware.RequirePermission(resolver, "roles:delete"),
				roleHandlers.DeleteRoleHandler())

			// Users and role assignment
			authed.GET("/users",
				middleware.RequirePermission(resolver, "users:read"),
				userHandlers.ListUsersHandler())
			authed.POST("/users/:id/roles",
				middleware.RequirePermission(resolver, "roles:assign"),
				roleHandlers.AssignRoleHandler())
			authed.DELETE("/users/:id/roles/:role_id",
				middleware.RequirePermission(resolver, "roles:assign"),
				roleHandlers.RemoveRoleHandler())

			// Audit logs
			authed.POST("/audit-logs",
				middleware.RequirePermission(resolver, "audit:create"),
				auditHandlers.CreateAuditLogHandler())
			authed.GET("/audit-logs",
				middleware.RequirePermission(resolver, "audit:read"),
				auditHandlers.ListAuditLogsHandler())
			authed.GET("/audit-logs/statistics",
				middleware.RequirePermission(resolver, "audit:read"),
				auditHandlers.StatisticsHandler())
			authed.DELETE("/audit-logs/cleanup",
				middleware.RequirePermission(resolver, "audit:admin"),
				auditHandlers.CleanupHandler())
		}
	}

	// Retention job: audit log retention window + expired session sweep
	retentionJob := jobs.NewRetentionJob(auditRepo, sessionRepo, cfg.Audit)
	if cfg.Audit.Enabled {
		retentionJob.Start(context.Background())
	}

	bg := &BackgroundServices{
		retentionJob: retentionJob,
		rateLimiters: []middleware.Limiter{generalLimiter, authLimiter},
	}
	return router, bg
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. The cache check is informational; the service degrades without Redis instead of failing.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks: map"
// @Failure      503  {object}  map[string]interface{}  "ready: false, error: database not ready"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service. The cache is
// best-effort everywhere, so only the database gates readiness.
func readinessHandler(db *sql.DB, cacheClient *cache.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.Ping(); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if cacheClient.Enabled() {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 500*time.Millisecond)
			if err := cacheClient.Redis().Ping(ctx).Err(); err != nil {
				checks["cache"] = "unhealthy"
			} else {
				checks["cache"] = "healthy"
			}
			cancel()
		} else {
			checks["cache"] = "disabled"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// LoggerMiddleware emits one structured slog record per request.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", c.GetString(middleware.RequestIDKey)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}
