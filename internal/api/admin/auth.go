// Package admin implements the /api/v1 handlers: authentication and session
// management, tenants, roles, users, and audit logs.
//
// auth.go covers the credential endpoints. Login and refresh set three
// cookies — the HTTP-only refresh token, the session ID, and the active
// tenant ID — so browser clients never handle the refresh token in script.
package admin

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/admin-backend/admin-backend/internal/auth"
	"github.com/admin-backend/admin-backend/internal/authflow"
	"github.com/admin-backend/admin-backend/internal/config"
	"github.com/admin-backend/admin-backend/internal/db/models"
	"github.com/admin-backend/admin-backend/internal/db/repositories"
	"github.com/admin-backend/admin-backend/internal/middleware"
	"github.com/admin-backend/admin-backend/internal/rbac"
)

const (
	refreshTokenCookie = "refresh_token"
	sessionIDCookie    = "session_id"
	authCookiePath     = "/api/v1/auth"
)

// AuthHandlers handles login, refresh, logout, session listing, and
// registration.
type AuthHandlers struct {
	cfg      *config.Config
	svc      *authflow.Service
	resolver *rbac.Resolver
	tenants  *repositories.TenantRepository
}

// NewAuthHandlers creates an AuthHandlers instance.
func NewAuthHandlers(cfg *config.Config, svc *authflow.Service, resolver *rbac.Resolver, tenants *repositories.TenantRepository) *AuthHandlers {
	return &AuthHandlers{cfg: cfg, svc: svc, resolver: resolver, tenants: tenants}
}

// setAuthCookies sets the refresh token, session ID, and tenant cookies.
// The refresh token is HTTP-only and scoped to the auth endpoints; the other
// two are readable by the frontend.
func (h *AuthHandlers) setAuthCookies(c *gin.Context, pair *authflow.TokenPair, tenantID string) {
	secure := h.cfg.Auth.TenantCookieSecure
	maxAge := int(time.Until(pair.RefreshExpiresAt).Seconds())

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(refreshTokenCookie, pair.RefreshToken, maxAge, authCookiePath, "", secure, true)
	c.SetCookie(sessionIDCookie, pair.SessionID, maxAge, "/", "", secure, false)
	c.SetCookie(h.cfg.Auth.TenantCookieName, tenantID, maxAge, "/", "", secure, false)
}

// clearAuthCookies expires all three auth cookies.
func (h *AuthHandlers) clearAuthCookies(c *gin.Context) {
	secure := h.cfg.Auth.TenantCookieSecure
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(refreshTokenCookie, "", -1, authCookiePath, "", secure, true)
	c.SetCookie(sessionIDCookie, "", -1, "/", "", secure, false)
	c.SetCookie(h.cfg.Auth.TenantCookieName, "", -1, "/", "", secure, false)
}

// LoginRequest carries login credentials. TenantID may instead come from the
// tenant cookie.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	TenantID string `json:"tenant_id"`
}

// @Summary      Log in
// @Description  Verify credentials and open a session. Sets the refresh token, session ID, and tenant cookies.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body  LoginRequest  true  "Credentials"
// @Success      200  {object}  map[string]interface{}  "user, access_token, refresh_token, token_type, expires_at, session_id"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Invalid email or password"
// @Router       /api/v1/auth/login [post]
// LoginHandler authenticates a user
// POST /api/v1/auth/login
func (h *AuthHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		tenantID := req.TenantID
		if tenantID == "" {
			tenantID, _ = c.Cookie(h.cfg.Auth.TenantCookieName)
		}
		if tenantID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required"})
			return
		}

		user, pair, err := h.svc.Login(c.Request.Context(), authflow.LoginInput{
			TenantID:  tenantID,
			Email:     req.Email,
			Password:  req.Password,
			UserAgent: c.Request.UserAgent(),
			IPAddress: c.ClientIP(),
		})
		if errors.Is(err, authflow.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
			return
		}

		// Session creation changes the authenticated state, so the user's
		// cached permissions are dropped before the response goes out.
		h.resolver.InvalidateUser(c.Request.Context(), user.TenantID, user.ID)

		h.setAuthCookies(c, pair, user.TenantID)

		// Identity for the audit middleware; login runs before AuthMiddleware.
		c.Set(middleware.ContextUserIDKey, user.ID)
		c.Set(middleware.ContextTenantKey, user.TenantID)
		c.Set(middleware.AuditActionKey, "auth.login")

		c.JSON(http.StatusOK, gin.H{
			"user":          user,
			"access_token":  pair.AccessToken,
			"refresh_token": pair.RefreshToken,
			"token_type":    pair.TokenType,
			"expires_at":    pair.ExpiresAt,
			"session_id":    pair.SessionID,
		})
	}
}

// RefreshRequest carries the refresh token when it is not in the cookie.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	TenantID     string `json:"tenant_id"`
}

// @Summary      Refresh tokens
// @Description  Rotate the refresh token into a new token pair. The token comes from the HTTP-only cookie or the request body.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body  RefreshRequest  false  "Refresh token (when not using cookies)"
// @Success      200  {object}  map[string]interface{}  "user, access_token, refresh_token, token_type, expires_at, session_id"
// @Failure      401  {object}  map[string]interface{}  "Invalid or expired refresh token"
// @Failure      403  {object}  map[string]interface{}  "Tenant mismatch"
// @Router       /api/v1/auth/refresh [post]
// RefreshHandler rotates a refresh token
// POST /api/v1/auth/refresh
func (h *AuthHandlers) RefreshHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RefreshRequest
		_ = c.ShouldBindJSON(&req) // body is optional when cookies are used

		refreshToken := req.RefreshToken
		if cookieToken, err := c.Cookie(refreshTokenCookie); err == nil && cookieToken != "" {
			refreshToken = cookieToken
		}
		if refreshToken == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Refresh token required"})
			return
		}

		tenantID := req.TenantID
		if cookieTenant, err := c.Cookie(h.cfg.Auth.TenantCookieName); err == nil && cookieTenant != "" {
			tenantID = cookieTenant
		}

		user, pair, err := h.svc.Refresh(c.Request.Context(), refreshToken, tenantID)
		switch {
		case errors.Is(err, auth.ErrTenantMismatch):
			c.JSON(http.StatusForbidden, gin.H{"error": "Session does not belong to the requested tenant"})
			return
		case errors.Is(err, authflow.ErrInvalidRefresh):
			h.clearAuthCookies(c)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired refresh token"})
			return
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Token refresh failed"})
			return
		}

		// Rotation is a session mutation like any other.
		h.resolver.InvalidateUser(c.Request.Context(), user.TenantID, user.ID)

		h.setAuthCookies(c, pair, user.TenantID)

		c.Set(middleware.ContextUserIDKey, user.ID)
		c.Set(middleware.ContextTenantKey, user.TenantID)
		c.Set(middleware.AuditActionKey, "auth.refresh")

		c.JSON(http.StatusOK, gin.H{
			"user":          user,
			"access_token":  pair.AccessToken,
			"refresh_token": pair.RefreshToken,
			"token_type":    pair.TokenType,
			"expires_at":    pair.ExpiresAt,
			"session_id":    pair.SessionID,
		})
	}
}

// LogoutRequest names the session to revoke. Falls back to the session_id
// query parameter, then the session cookie.
type LogoutRequest struct {
	SessionID string `json:"session_id"`
}

// @Summary      Log out
// @Description  Revoke one of the caller's sessions. The caller must own the session.
// @Tags         Auth
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  LogoutRequest  false  "Session to revoke (defaults to the session cookie)"
// @Success      200  {object}  map[string]interface{}  "message, sessions_revoked"
// @Failure      404  {object}  map[string]interface{}  "Session not found"
// @Router       /api/v1/auth/logout [post]
// LogoutHandler revokes a session
// POST /api/v1/auth/logout
func (h *AuthHandlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LogoutRequest
		_ = c.ShouldBindJSON(&req)

		sessionID := req.SessionID
		if sessionID == "" {
			sessionID = c.Query("session_id")
		}
		if sessionID == "" {
			sessionID, _ = c.Cookie(sessionIDCookie)
		}
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
			return
		}

		user := middleware.CurrentUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		err := h.svc.Logout(c.Request.Context(), sessionID, user.ID)
		if errors.Is(err, authflow.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Logout failed"})
			return
		}

		h.resolver.InvalidateUser(c.Request.Context(), user.TenantID, user.ID)
		h.clearAuthCookies(c)

		c.Set(middleware.AuditActionKey, "auth.logout")
		c.Set(middleware.AuditResourceIDKey, sessionID)
		c.JSON(http.StatusOK, gin.H{
			"message":          "Logged out",
			"sessions_revoked": 1,
		})
	}
}

// @Summary      Log out everywhere
// @Description  Revoke every session the caller has.
// @Tags         Auth
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "message, sessions_revoked"
// @Router       /api/v1/auth/logout-all [post]
// LogoutAllHandler revokes all of the caller's sessions
// POST /api/v1/auth/logout-all
func (h *AuthHandlers) LogoutAllHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		revoked, err := h.svc.LogoutAll(c.Request.Context(), user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Logout failed"})
			return
		}

		h.resolver.InvalidateUser(c.Request.Context(), user.TenantID, user.ID)
		h.clearAuthCookies(c)

		c.Set(middleware.AuditActionKey, "auth.logout_all")
		c.JSON(http.StatusOK, gin.H{
			"message":          "Logged out from all sessions",
			"sessions_revoked": revoked,
		})
	}
}

// @Summary      List sessions
// @Description  List the caller's active sessions, newest activity first.
// @Tags         Auth
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "sessions: []models.Session"
// @Router       /api/v1/auth/sessions [get]
// SessionsHandler lists the caller's active sessions
// GET /api/v1/auth/sessions
func (h *AuthHandlers) SessionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		sessions, err := h.svc.Sessions(c.Request.Context(), user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sessions"})
			return
		}
		if sessions == nil {
			sessions = []*models.Session{}
		}
		c.JSON(http.StatusOK, gin.H{"sessions": sessions})
	}
}

// RegisterRequest creates a tenant (idempotently, by domain) and its first
// user in one call.
type RegisterRequest struct {
	TenantName   string `json:"tenant_name" binding:"required"`
	TenantDomain string `json:"tenant_domain"`
	Email        string `json:"email" binding:"required,email"`
	Password     string `json:"password" binding:"required,min=8"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
}

// @Summary      Register
// @Description  Create a tenant (idempotent by domain) and an account in it. Re-registering an existing domain joins that tenant.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body  RegisterRequest  true  "Registration request"
// @Success      201  {object}  map[string]interface{}  "user, tenant, tenant_created"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      409  {object}  map[string]interface{}  "Email already registered in this tenant"
// @Router       /api/v1/auth/register [post]
// RegisterHandler creates a tenant and its first user
// POST /api/v1/auth/register
func (h *AuthHandlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		tenant := &models.Tenant{Name: req.TenantName, IsActive: true}
		if req.TenantDomain != "" {
			tenant.Domain = &req.TenantDomain
		}
		tenant, created, err := h.tenants.Create(c.Request.Context(), tenant)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed"})
			return
		}

		user, err := h.svc.Register(c.Request.Context(), authflow.RegisterInput{
			TenantID:  tenant.ID,
			Email:     req.Email,
			Password:  req.Password,
			FirstName: req.FirstName,
			LastName:  req.LastName,
		})
		if errors.Is(err, repositories.ErrDuplicateEmail) {
			c.JSON(http.StatusConflict, gin.H{"error": "Email already registered in this tenant"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed"})
			return
		}

		c.Set(middleware.ContextUserIDKey, user.ID)
		c.Set(middleware.ContextTenantKey, tenant.ID)
		c.Set(middleware.AuditActionKey, "auth.register")
		c.Set(middleware.AuditResourceIDKey, user.ID)

		c.JSON(http.StatusCreated, gin.H{
			"user":           user,
			"tenant":         tenant,
			"tenant_created": created,
		})
	}
}
