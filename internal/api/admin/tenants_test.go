package admin

import (
	"database/sql"
	"net/http"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/admin-backend/admin-backend/internal/db/repositories"
	"github.com/admin-backend/admin-backend/internal/middleware"
)

func newTenantFixture(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := NewTenantHandlers(repositories.NewTenantRepository(db))

	r := gin.New()
	r.Use(func(gc *gin.Context) {
		gc.Set(middleware.ContextUserIDKey, "user-1")
		gc.Set(middleware.ContextTenantKey, "tenant-1")
	})
	r.POST("/api/v1/tenants", h.CreateTenantHandler())
	r.GET("/api/v1/tenants", h.ListTenantsHandler())
	r.GET("/api/v1/tenants/:id", h.GetTenantHandler())
	return r, mock
}

var tenantCols = []string{"id", "name", "domain", "settings", "subscription_tier", "is_active", "created_at", "updated_at"}

func tenantRow(id, name string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(tenantCols).
		AddRow(id, name, "acme.example.com", []byte(`{}`), "free", true, now, now)
}

func TestCreateTenant_New(t *testing.T) {
	r, mock := newTenantFixture(t)
	mock.ExpectQuery("SELECT (.+) FROM tenants WHERE domain").
		WithArgs("acme.example.com").
		WillReturnError(sql.ErrNoRows)
	// New tenants start active.
	mock.ExpectExec("INSERT INTO tenants").
		WithArgs(sqlmock.AnyArg(), "Acme", "acme.example.com", sqlmock.AnyArg(), "free", true,
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := doJSON(t, r, http.MethodPost, "/api/v1/tenants", gin.H{
		"name":   "Acme",
		"domain": "acme.example.com",
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	if body := decodeBody(t, w); body["created"] != true {
		t.Errorf("created = %v, want true", body["created"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateTenant_ExistingDomainIsIdempotent(t *testing.T) {
	r, mock := newTenantFixture(t)
	mock.ExpectQuery("SELECT (.+) FROM tenants WHERE domain").
		WithArgs("acme.example.com").
		WillReturnRows(tenantRow("tenant-1", "Acme"))

	w := doJSON(t, r, http.MethodPost, "/api/v1/tenants", gin.H{
		"name":   "Acme Again",
		"domain": "acme.example.com",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if body := decodeBody(t, w); body["created"] != false {
		t.Errorf("created = %v, want false", body["created"])
	}
}

func TestListTenants_Pagination(t *testing.T) {
	r, mock := newTenantFixture(t)
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))
	mock.ExpectQuery("SELECT (.+) FROM tenants ORDER BY created_at").
		WithArgs(10, 10).
		WillReturnRows(tenantRow("tenant-1", "Acme"))

	w := doJSON(t, r, http.MethodGet, "/api/v1/tenants?page=2&per_page=10", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	pagination := body["pagination"].(map[string]interface{})
	if pagination["total"] != float64(42) || pagination["page"] != float64(2) {
		t.Errorf("pagination = %v", pagination)
	}
}

func TestGetTenant_Own(t *testing.T) {
	r, mock := newTenantFixture(t)
	mock.ExpectQuery("SELECT (.+) FROM tenants WHERE id").
		WithArgs("tenant-1").
		WillReturnRows(tenantRow("tenant-1", "Acme"))

	w := doJSON(t, r, http.MethodGet, "/api/v1/tenants/tenant-1", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
}

func TestGetTenant_CrossTenantForbidden(t *testing.T) {
	r, _ := newTenantFixture(t)

	w := doJSON(t, r, http.MethodGet, "/api/v1/tenants/tenant-2", nil)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403: %s", w.Code, w.Body.String())
	}
}

func TestGetTenant_NotFound(t *testing.T) {
	r, mock := newTenantFixture(t)
	mock.ExpectQuery("SELECT (.+) FROM tenants WHERE id").
		WithArgs("tenant-1").
		WillReturnError(sql.ErrNoRows)

	w := doJSON(t, r, http.MethodGet, "/api/v1/tenants/tenant-1", nil)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", w.Code, w.Body.String())
	}
}
