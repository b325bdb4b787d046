// tenant_repository.go implements TenantRepository. Tenant creation is
// idempotent by domain: creating a tenant whose domain already exists returns
// the existing row instead of failing, including when a concurrent request
// wins the insert race.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/admin-backend/admin-backend/internal/db/models"
)

const pgUniqueViolation = "23505"

// isUniqueViolation reports whether err is a Postgres unique constraint error.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

// TenantRepository handles database operations for tenants
type TenantRepository struct {
	db *sql.DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *sql.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

const tenantColumns = `id, name, domain, settings, subscription_tier, is_active, created_at, updated_at`

func scanTenant(row interface {
	Scan(dest ...interface{}) error
}) (*models.Tenant, error) {
	var t models.Tenant
	var settingsJSON []byte
	err := row.Scan(&t.ID, &t.Name, &t.Domain, &settingsJSON, &t.SubscriptionTier, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &t.Settings); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

// Create inserts a new tenant. When the tenant carries a domain and a tenant
// with that domain already exists, the existing tenant is returned and the
// second return value is false. The race where two requests insert the same
// domain at once is resolved the same way via the unique constraint.
func (r *TenantRepository) Create(ctx context.Context, tenant *models.Tenant) (*models.Tenant, bool, error) {
	if tenant.Domain != nil {
		existing, err := r.GetByDomain(ctx, *tenant.Domain)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	tenant.ID = uuid.New().String()
	now := time.Now().UTC()
	tenant.CreatedAt = now
	tenant.UpdatedAt = now
	if tenant.SubscriptionTier == "" {
		tenant.SubscriptionTier = "free"
	}
	if tenant.Settings == nil {
		tenant.Settings = map[string]interface{}{}
	}
	settingsJSON, err := json.Marshal(tenant.Settings)
	if err != nil {
		return nil, false, err
	}

	query := `INSERT INTO tenants (id, name, domain, settings, subscription_tier, is_active, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.db.ExecContext(ctx, query,
		tenant.ID, tenant.Name, tenant.Domain, settingsJSON, tenant.SubscriptionTier, tenant.IsActive, tenant.CreatedAt, tenant.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) && tenant.Domain != nil {
			existing, getErr := r.GetByDomain(ctx, *tenant.Domain)
			if getErr != nil {
				return nil, false, getErr
			}
			if existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}

	return tenant, true, nil
}

// GetByID retrieves a tenant by ID
func (r *TenantRepository) GetByID(ctx context.Context, id string) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`

	tenant, err := scanTenant(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tenant, nil
}

// GetByDomain retrieves a tenant by its domain
func (r *TenantRepository) GetByDomain(ctx context.Context, domain string) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE domain = $1`

	tenant, err := scanTenant(r.db.QueryRowContext(ctx, query, domain))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tenant, nil
}

// List returns a page of tenants ordered by creation time, newest first,
// together with the total count.
func (r *TenantRepository) List(ctx context.Context, limit, offset int) ([]*models.Tenant, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tenants`).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + tenantColumns + ` FROM tenants ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, 0, err
		}
		tenants = append(tenants, tenant)
	}

	return tenants, total, rows.Err()
}
