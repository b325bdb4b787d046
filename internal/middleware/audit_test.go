package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/admin-backend/admin-backend/internal/config"
	"github.com/admin-backend/admin-backend/internal/db/repositories"
)

func auditTestConfig() config.AuditConfig {
	return config.AuditConfig{Enabled: true}
}

// newAuditRouter wires a sqlmock-backed audit repository behind the
// middleware, with a pre-handler that plants the identity context.
func newAuditRouter(t *testing.T, auditCfg config.AuditConfig, tenantID string) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if tenantID != "" {
			c.Set(ContextUserIDKey, "user-1")
			c.Set(ContextTenantKey, tenantID)
		}
	})
	r.Use(AuditMiddleware(repositories.NewAuditRepository(db), auditCfg))
	r.POST("/api/v1/roles", func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.POST("/api/v1/auth/login", func(c *gin.Context) {
		c.Set(AuditActionKey, "auth.login")
		c.Status(http.StatusOK)
	})
	r.GET("/api/v1/users", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/fail", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	return r, mock
}

func post(r *gin.Engine, url string) {
	req := httptest.NewRequest(http.MethodPost, url, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
}

// waitForExpectations polls because the audit write happens on a detached
// goroutine after the response.
func waitForExpectations(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if mock.ExpectationsWereMet() == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("audit write not observed: %v", mock.ExpectationsWereMet())
}

// assertNoWrite gives the async path a moment, then checks nothing was written.
func assertNoWrite(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	time.Sleep(50 * time.Millisecond)
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected audit write: %v", err)
	}
}

// ---------------------------------------------------------------------------
// AuditMiddleware
// ---------------------------------------------------------------------------

func TestAudit_SuccessfulWriteIsLogged(t *testing.T) {
	r, mock := newAuditRouter(t, auditTestConfig(), "tenant-1")
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(sqlmock.AnyArg(), "tenant-1", "user-1", "POST /api/v1/roles",
			"role", nil, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	post(r, "/api/v1/roles")
	waitForExpectations(t, mock)
}

func TestAudit_HandlerActionOverride(t *testing.T) {
	r, mock := newAuditRouter(t, auditTestConfig(), "tenant-1")
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(sqlmock.AnyArg(), "tenant-1", "user-1", "auth.login",
			"session", nil, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	post(r, "/api/v1/auth/login")
	waitForExpectations(t, mock)
}

func TestAudit_ReadsSkippedByDefault(t *testing.T) {
	r, mock := newAuditRouter(t, auditTestConfig(), "tenant-1")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assertNoWrite(t, mock)
}

func TestAudit_ReadsLoggedWhenConfigured(t *testing.T) {
	cfg := auditTestConfig()
	cfg.LogReadOperations = true
	r, mock := newAuditRouter(t, cfg, "tenant-1")
	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	waitForExpectations(t, mock)
}

func TestAudit_FailuresSkippedByDefault(t *testing.T) {
	r, mock := newAuditRouter(t, auditTestConfig(), "tenant-1")
	post(r, "/fail")
	assertNoWrite(t, mock)
}

func TestAudit_FailuresLoggedWhenConfigured(t *testing.T) {
	cfg := auditTestConfig()
	cfg.LogFailedRequests = true
	r, mock := newAuditRouter(t, cfg, "tenant-1")
	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	post(r, "/fail")
	waitForExpectations(t, mock)
}

func TestAudit_DisabledWritesNothing(t *testing.T) {
	cfg := auditTestConfig()
	cfg.Enabled = false
	r, mock := newAuditRouter(t, cfg, "tenant-1")
	post(r, "/api/v1/roles")
	assertNoWrite(t, mock)
}

func TestAudit_NoTenantSkipped(t *testing.T) {
	r, mock := newAuditRouter(t, auditTestConfig(), "")
	post(r, "/api/v1/roles")
	assertNoWrite(t, mock)
}
