package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/admin-backend/admin-backend/internal/auth"
	"github.com/admin-backend/admin-backend/internal/authflow"
	"github.com/admin-backend/admin-backend/internal/config"
	"github.com/admin-backend/admin-backend/internal/db/models"
	"github.com/admin-backend/admin-backend/internal/db/repositories"
	"github.com/admin-backend/admin-backend/internal/middleware"
	"github.com/admin-backend/admin-backend/internal/rbac"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeUserStore struct {
	byID      map[string]*models.User
	createErr error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{byID: map[string]*models.User{}}
}

func (f *fakeUserStore) Create(ctx context.Context, user *models.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	user.ID = fmt.Sprintf("user-%d", len(f.byID)+1)
	f.byID[user.ID] = user
	return nil
}

func (f *fakeUserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	return f.byID[id], nil
}

func (f *fakeUserStore) GetByEmail(ctx context.Context, tenantID, email string) (*models.User, error) {
	for _, u := range f.byID {
		if u.TenantID == tenantID && u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUserStore) UpdateLastLogin(ctx context.Context, userID string) error {
	return nil
}

type fakeSessionStore struct {
	byID   map[string]*models.Session
	nextID int
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{byID: map[string]*models.Session{}}
}

func (f *fakeSessionStore) Upsert(ctx context.Context, session *models.Session) error {
	f.nextID++
	session.ID = fmt.Sprintf("sess-%d", f.nextID)
	f.byID[session.ID] = session
	return nil
}

func (f *fakeSessionStore) GetByRefreshHash(ctx context.Context, refreshHash string) (*models.Session, error) {
	for _, s := range f.byID {
		if s.RefreshTokenHash == refreshHash {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeSessionStore) Rotate(ctx context.Context, sessionID, oldRefreshHash, newTokenHash, newRefreshHash string, expiresAt time.Time) (bool, error) {
	s, ok := f.byID[sessionID]
	if !ok || s.RefreshTokenHash != oldRefreshHash {
		return false, nil
	}
	s.TokenHash = newTokenHash
	s.RefreshTokenHash = newRefreshHash
	s.ExpiresAt = expiresAt
	return true, nil
}

func (f *fakeSessionStore) Revoke(ctx context.Context, sessionID, userID string) (bool, error) {
	s, ok := f.byID[sessionID]
	if !ok || s.UserID != userID {
		return false, nil
	}
	delete(f.byID, sessionID)
	return true, nil
}

func (f *fakeSessionStore) RevokeAll(ctx context.Context, userID string) (int64, error) {
	var n int64
	for id, s := range f.byID {
		if s.UserID == userID {
			delete(f.byID, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeSessionStore) ListByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	var sessions []*models.Session
	for _, s := range f.byID {
		if s.UserID == userID {
			sessions = append(sessions, s)
		}
	}
	return sessions, nil
}

// fakeCache records invalidation calls so tests can assert that role and
// session mutations drop the right cache entries.
type fakeCache struct {
	invalidatedUsers   []string
	invalidatedTenants []string
}

func (f *fakeCache) Enabled() bool { return false }

func (f *fakeCache) Get(ctx context.Context, key string) ([]byte, bool) { return nil, false }

func (f *fakeCache) Set(ctx context.Context, key string, value []byte) {}

func (f *fakeCache) InvalidateUser(ctx context.Context, tenantID, userID string) {
	f.invalidatedUsers = append(f.invalidatedUsers, tenantID+"/"+userID)
}
func (f *fakeCache) InvalidateTenantRoles(ctx context.Context, tenantID, roleID string) {
	f.invalidatedTenants = append(f.invalidatedTenants, tenantID+"/"+roleID)
}

type fakePermSource struct{}

func (fakePermSource) GetUserPermissions(ctx context.Context, userID string) ([]string, error) {
	return nil, nil
}
func (fakePermSource) GetUserRoleNames(ctx context.Context, userID string) ([]string, error) {
	return nil, nil
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

var (
	hashOnce   sync.Once
	passwdHash string
)

// testPasswordHash hashes the shared test password once; bcrypt at the
// production cost is too slow to repeat per test.
func testPasswordHash(t *testing.T) string {
	t.Helper()
	hashOnce.Do(func() {
		var err error
		passwdHash, err = auth.HashPassword("correct horse battery")
		if err != nil {
			t.Fatalf("HashPassword: %v", err)
		}
	})
	return passwdHash
}

func authTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Auth.TenantCookieName = "tenant_id"
	return cfg
}

type authFixture struct {
	router   *gin.Engine
	users    *fakeUserStore
	sessions *fakeSessionStore
	cache    *fakeCache
	mock     sqlmock.Sqlmock
	user     *models.User
}

// newAuthFixture wires the auth handlers behind a test router. The seeded
// user ("user-1" in "tenant-1") is also planted as the authenticated caller
// on the session-management routes.
func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	issuer, err := auth.NewIssuer("0123456789abcdef0123456789abcdef", "admin-backend-test",
		15*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	users := newFakeUserStore()
	seeded := &models.User{
		ID:             "user-1",
		TenantID:       "tenant-1",
		Email:          "admin@acme.example.com",
		HashedPassword: testPasswordHash(t),
		IsActive:       true,
	}
	users.byID[seeded.ID] = seeded

	sessions := newFakeSessionStore()
	c := &fakeCache{}
	resolver := rbac.NewResolver(fakePermSource{}, c)
	svc := authflow.NewService(users, sessions, issuer)
	h := NewAuthHandlers(authTestConfig(), svc, resolver, repositories.NewTenantRepository(db))

	r := gin.New()
	r.POST("/api/v1/auth/login", h.LoginHandler())
	r.POST("/api/v1/auth/refresh", h.RefreshHandler())
	r.POST("/api/v1/auth/register", h.RegisterHandler())

	authed := r.Group("", func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, seeded)
		c.Set(middleware.ContextUserIDKey, seeded.ID)
		c.Set(middleware.ContextTenantKey, seeded.TenantID)
	})
	authed.POST("/api/v1/auth/logout", h.LogoutHandler())
	authed.POST("/api/v1/auth/logout-all", h.LogoutAllHandler())
	authed.GET("/api/v1/auth/sessions", h.SessionsHandler())

	return &authFixture{router: r, users: users, sessions: sessions, cache: c, mock: mock, user: seeded}
}

func doJSON(t *testing.T, r *gin.Engine, method, url string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Login
// ---------------------------------------------------------------------------

func TestLogin_Success(t *testing.T) {
	f := newAuthFixture(t)

	w := doJSON(t, f.router, http.MethodPost, "/api/v1/auth/login", gin.H{
		"email":     "admin@acme.example.com",
		"password":  "correct horse battery",
		"tenant_id": "tenant-1",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["access_token"] == "" || body["access_token"] == nil {
		t.Error("expected an access token in the response")
	}
	// Stateless clients get the refresh token in the body, not just the cookie.
	if token, _ := body["refresh_token"].(string); token == "" {
		t.Error("expected a refresh token in the response body")
	}
	if body["session_id"] != "sess-1" {
		t.Errorf("session_id = %v, want sess-1", body["session_id"])
	}
	if len(f.cache.invalidatedUsers) == 0 || f.cache.invalidatedUsers[0] != "tenant-1/user-1" {
		t.Errorf("permission cache not invalidated on login: %v", f.cache.invalidatedUsers)
	}
	for _, name := range []string{"refresh_token", "session_id", "tenant_id"} {
		cookie := findCookie(w, name)
		if cookie == nil || cookie.Value == "" {
			t.Errorf("cookie %q not set", name)
		}
	}
	if cookie := findCookie(w, "refresh_token"); cookie != nil && !cookie.HttpOnly {
		t.Error("refresh token cookie must be HTTP-only")
	}
}

func TestLogin_TenantFromCookie(t *testing.T) {
	f := newAuthFixture(t)

	w := doJSON(t, f.router, http.MethodPost, "/api/v1/auth/login", gin.H{
		"email":    "admin@acme.example.com",
		"password": "correct horse battery",
	}, &http.Cookie{Name: "tenant_id", Value: "tenant-1"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
}

func TestLogin_MissingTenant(t *testing.T) {
	f := newAuthFixture(t)

	w := doJSON(t, f.router, http.MethodPost, "/api/v1/auth/login", gin.H{
		"email":    "admin@acme.example.com",
		"password": "correct horse battery",
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	f := newAuthFixture(t)

	w := doJSON(t, f.router, http.MethodPost, "/api/v1/auth/login", gin.H{
		"email":     "admin@acme.example.com",
		"password":  "wrong",
		"tenant_id": "tenant-1",
	})

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestLogin_DisabledAccount(t *testing.T) {
	f := newAuthFixture(t)
	f.user.IsActive = false

	w := doJSON(t, f.router, http.MethodPost, "/api/v1/auth/login", gin.H{
		"email":     "admin@acme.example.com",
		"password":  "correct horse battery",
		"tenant_id": "tenant-1",
	})

	// Disabled accounts are indistinguishable from bad credentials.
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Refresh
// ---------------------------------------------------------------------------

func login(t *testing.T, f *authFixture) *httptest.ResponseRecorder {
	t.Helper()
	w := doJSON(t, f.router, http.MethodPost, "/api/v1/auth/login", gin.H{
		"email":     "admin@acme.example.com",
		"password":  "correct horse battery",
		"tenant_id": "tenant-1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", w.Code, w.Body.String())
	}
	return w
}

func TestRefresh_RotatesViaCookie(t *testing.T) {
	f := newAuthFixture(t)
	loginResp := login(t, f)
	oldRefresh := findCookie(loginResp, "refresh_token")

	w := doJSON(t, f.router, http.MethodPost, "/api/v1/auth/refresh", nil,
		&http.Cookie{Name: "refresh_token", Value: oldRefresh.Value},
		&http.Cookie{Name: "tenant_id", Value: "tenant-1"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	newRefresh := findCookie(w, "refresh_token")
	if newRefresh == nil || newRefresh.Value == "" {
		t.Fatal("rotated refresh cookie not set")
	}
	if newRefresh.Value == oldRefresh.Value {
		t.Error("refresh token was not rotated")
	}
	body := decodeBody(t, w)
	if body["session_id"] != "sess-1" {
		t.Errorf("session_id = %v, want the stable sess-1", body["session_id"])
	}
	if token, _ := body["refresh_token"].(string); token == "" || token == oldRefresh.Value {
		t.Error("expected the rotated refresh token in the response body")
	}
}

func TestRefresh_InvalidatesPermissionCache(t *testing.T) {
	f := newAuthFixture(t)
	loginResp := login(t, f)
	refresh := findCookie(loginResp, "refresh_token")
	f.cache.invalidatedUsers = nil

	w := doJSON(t, f.router, http.MethodPost, "/api/v1/auth/refresh", nil,
		&http.Cookie{Name: "refresh_token", Value: refresh.Value})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if len(f.cache.invalidatedUsers) == 0 || f.cache.invalidatedUsers[0] != "tenant-1/user-1" {
		t.Errorf("permission cache not invalidated on rotation: %v", f.cache.invalidatedUsers)
	}
}

func TestRefresh_ReplayRejected(t *testing.T) {
	f := newAuthFixture(t)
	loginResp := login(t, f)
	oldRefresh := findCookie(loginResp, "refresh_token")

	first := doJSON(t, f.router, http.MethodPost, "/api/v1/auth/refresh", nil,
		&http.Cookie{Name: "refresh_token", Value: oldRefresh.Value})
	if first.Code != http.StatusOK {
		t.Fatalf("first refresh: %d", first.Code)
	}

	replay := doJSON(t, f.router, http.MethodPost, "/api/v1/auth/refresh", nil,
		&http.Cookie{Name: "refresh_token", Value: oldRefresh.Value})
	if replay.Code != http.StatusUnauthorized {
		t.Fatalf("replayed token: status = %d, want 401", replay.Code)
	}
}

func TestRefresh_TenantMismatch(t *testing.T) {
	f := newAuthFixture(t)
	loginResp := login(t, f)
	refresh := findCookie(loginResp, "refresh_token")

	w := doJSON(t, f.router, http.MethodPost, "/api/v1/auth/refresh", nil,
		&http.Cookie{Name: "refresh_token", Value: refresh.Value},
		&http.Cookie{Name: "tenant_id", Value: "tenant-2"})

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestRefresh_InvalidTokenClearsCookies(t *testing.T) {
	f := newAuthFixture(t)

	w := doJSON(t, f.router, http.MethodPost, "/api/v1/auth/refresh", nil,
		&http.Cookie{Name: "refresh_token", Value: "not-a-token"})

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	cookie := findCookie(w, "refresh_token")
	if cookie == nil || cookie.Value != "" {
		t.Error("expected the refresh cookie to be cleared")
	}
}

func TestRefresh_MissingToken(t *testing.T) {
	f := newAuthFixture(t)

	w := doJSON(t, f.router, http.MethodPost, "/api/v1/auth/refresh", nil)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Logout and sessions
// ---------------------------------------------------------------------------

func TestLogout_OwnedSession(t *testing.T) {
	f := newAuthFixture(t)
	login(t, f)

	w := doJSON(t, f.router, http.MethodPost, "/api/v1/auth/logout", gin.H{"session_id": "sess-1"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if len(f.sessions.byID) != 0 {
		t.Errorf("session not revoked: %d remaining", len(f.sessions.byID))
	}
	if body := decodeBody(t, w); body["sessions_revoked"] != float64(1) {
		t.Errorf("sessions_revoked = %v, want 1", body["sessions_revoked"])
	}
	if len(f.cache.invalidatedUsers) == 0 || f.cache.invalidatedUsers[0] != "tenant-1/user-1" {
		t.Errorf("permission cache not invalidated: %v", f.cache.invalidatedUsers)
	}
	if cookie := findCookie(w, "refresh_token"); cookie == nil || cookie.Value != "" {
		t.Error("expected the refresh cookie to be cleared")
	}
}

func TestLogout_UnknownSession(t *testing.T) {
	f := newAuthFixture(t)

	w := doJSON(t, f.router, http.MethodPost, "/api/v1/auth/logout", gin.H{"session_id": "sess-999"})

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestLogoutAll_CountsRevoked(t *testing.T) {
	f := newAuthFixture(t)
	login(t, f)
	login(t, f)

	w := doJSON(t, f.router, http.MethodPost, "/api/v1/auth/logout-all", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decodeBody(t, w)
	if body["sessions_revoked"] != float64(2) {
		t.Errorf("sessions_revoked = %v, want 2", body["sessions_revoked"])
	}
	if body["message"] == nil {
		t.Error("expected a message alongside the count")
	}
}

func TestSessions_EmptyListIsArray(t *testing.T) {
	f := newAuthFixture(t)

	w := doJSON(t, f.router, http.MethodGet, "/api/v1/auth/sessions", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"sessions":[]`)) {
		t.Errorf("expected an empty array, got %s", w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Register
// ---------------------------------------------------------------------------

func TestRegister_CreatesTenantAndUser(t *testing.T) {
	f := newAuthFixture(t)
	f.mock.ExpectExec("INSERT INTO tenants").
		WithArgs(sqlmock.AnyArg(), "Acme", nil, sqlmock.AnyArg(), "free", true,
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := doJSON(t, f.router, http.MethodPost, "/api/v1/auth/register", gin.H{
		"tenant_name": "Acme",
		"email":       "founder@acme.example.com",
		"password":    "a long password",
		"first_name":  "Ada",
		"last_name":   "Lovelace",
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["tenant_created"] != true {
		t.Errorf("tenant_created = %v, want true", body["tenant_created"])
	}
	user, _ := body["user"].(map[string]interface{})
	if user["first_name"] != "Ada" || user["last_name"] != "Lovelace" {
		t.Errorf("user name = %v %v, want Ada Lovelace", user["first_name"], user["last_name"])
	}
	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("tenant insert not observed: %v", err)
	}
}

func TestRegister_ExistingDomainJoinsTenant(t *testing.T) {
	f := newAuthFixture(t)
	now := time.Now().UTC()
	f.mock.ExpectQuery("SELECT (.+) FROM tenants WHERE domain").
		WithArgs("acme.example.com").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "domain", "settings", "subscription_tier", "is_active", "created_at", "updated_at",
		}).AddRow("tenant-1", "Acme", "acme.example.com", []byte(`{}`), "free", true, now, now))

	w := doJSON(t, f.router, http.MethodPost, "/api/v1/auth/register", gin.H{
		"tenant_name":   "Acme",
		"tenant_domain": "acme.example.com",
		"email":         "second@acme.example.com",
		"password":      "a long password",
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	if body := decodeBody(t, w); body["tenant_created"] != false {
		t.Errorf("tenant_created = %v, want false", body["tenant_created"])
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)
	f.users.createErr = repositories.ErrDuplicateEmail
	f.mock.ExpectExec("INSERT INTO tenants").
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := doJSON(t, f.router, http.MethodPost, "/api/v1/auth/register", gin.H{
		"tenant_name": "Acme",
		"email":       "founder@acme.example.com",
		"password":    "a long password",
	})

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", w.Code, w.Body.String())
	}
}

func TestRegister_ShortPasswordRejected(t *testing.T) {
	f := newAuthFixture(t)

	w := doJSON(t, f.router, http.MethodPost, "/api/v1/auth/register", gin.H{
		"tenant_name": "Acme",
		"email":       "founder@acme.example.com",
		"password":    "short",
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
