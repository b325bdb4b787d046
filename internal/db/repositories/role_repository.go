// role_repository.go implements RoleRepository, providing database queries for
// role CRUD, role assignment, and permission aggregation. Expired assignments
// stay in user_roles but never contribute role names or permissions.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/admin-backend/admin-backend/internal/db/models"
)

// RoleRepository handles database operations for roles and role assignments
type RoleRepository struct {
	db *sqlx.DB
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *sqlx.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

const roleColumns = `id, tenant_id, name, description, permissions, is_system, created_at, updated_at`

func scanRole(row interface {
	Scan(dest ...interface{}) error
}) (*models.Role, error) {
	var role models.Role
	var permissionsJSON []byte
	err := row.Scan(&role.ID, &role.TenantID, &role.Name, &role.Description,
		&permissionsJSON, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(permissionsJSON, &role.Permissions); err != nil {
		return nil, err
	}
	return &role, nil
}

// Create inserts a new tenant-scoped role
func (r *RoleRepository) Create(ctx context.Context, role *models.Role) error {
	role.ID = uuid.New().String()
	now := time.Now().UTC()
	role.CreatedAt = now
	role.UpdatedAt = now
	if role.Permissions == nil {
		role.Permissions = []string{}
	}
	permissionsJSON, err := json.Marshal(role.Permissions)
	if err != nil {
		return err
	}

	query := `INSERT INTO roles (id, tenant_id, name, description, permissions, is_system, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.db.ExecContext(ctx, query,
		role.ID, role.TenantID, role.Name, role.Description, permissionsJSON, role.IsSystem, role.CreatedAt, role.UpdatedAt)
	return err
}

// GetByID retrieves a role by ID
func (r *RoleRepository) GetByID(ctx context.Context, id string) (*models.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE id = $1`

	role, err := scanRole(r.db.QueryRowxContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return role, nil
}

// GetByName resolves a role name for a tenant. Tenant-scoped roles shadow
// system roles of the same name.
func (r *RoleRepository) GetByName(ctx context.Context, tenantID, name string) (*models.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles
			  WHERE name = $2 AND (tenant_id = $1 OR tenant_id IS NULL)
			  ORDER BY tenant_id NULLS LAST
			  LIMIT 1`

	role, err := scanRole(r.db.QueryRowxContext(ctx, query, tenantID, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return role, nil
}

// ListForTenant returns the tenant's own roles plus the system roles visible
// to every tenant.
func (r *RoleRepository) ListForTenant(ctx context.Context, tenantID string) ([]*models.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles
			  WHERE tenant_id = $1 OR tenant_id IS NULL
			  ORDER BY is_system DESC, name`

	rows, err := r.db.QueryxContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*models.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}

	return roles, rows.Err()
}

// Delete removes a non-system role. It reports false when the role does not
// exist or is a system role, which cannot be deleted.
func (r *RoleRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM roles WHERE id = $1 AND is_system = FALSE`, id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Assign grants a role to a user, recording who made the grant. Re-assigning
// an already held role updates the expiry and the grantor instead of failing,
// so a grant can be extended or made permanent.
func (r *RoleRepository) Assign(ctx context.Context, userID, roleID, assignedBy string, expiresAt *time.Time) error {
	query := `INSERT INTO user_roles (id, user_id, role_id, assigned_by, assigned_at, expires_at)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  ON CONFLICT (user_id, role_id) DO UPDATE
			  SET assigned_by = EXCLUDED.assigned_by,
			      assigned_at = EXCLUDED.assigned_at,
			      expires_at  = EXCLUDED.expires_at`

	var grantor *string
	if assignedBy != "" {
		grantor = &assignedBy
	}
	_, err := r.db.ExecContext(ctx, query, uuid.New().String(), userID, roleID, grantor, time.Now().UTC(), expiresAt)
	return err
}

// Remove revokes a role from a user, reporting whether an assignment existed
func (r *RoleRepository) Remove(ctx context.Context, userID, roleID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// GetRolesForUser returns the user's unexpired roles
func (r *RoleRepository) GetRolesForUser(ctx context.Context, userID string) ([]*models.Role, error) {
	query := `SELECT r.id, r.tenant_id, r.name, r.description, r.permissions, r.is_system, r.created_at, r.updated_at
			  FROM roles r
			  JOIN user_roles ur ON ur.role_id = r.id
			  WHERE ur.user_id = $1 AND (ur.expires_at IS NULL OR ur.expires_at > now())
			  ORDER BY r.name`

	rows, err := r.db.QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*models.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}

	return roles, rows.Err()
}

// GetUserRoleNames returns the names of the user's unexpired roles
func (r *RoleRepository) GetUserRoleNames(ctx context.Context, userID string) ([]string, error) {
	query := `SELECT r.name
			  FROM roles r
			  JOIN user_roles ur ON ur.role_id = r.id
			  WHERE ur.user_id = $1 AND (ur.expires_at IS NULL OR ur.expires_at > now())
			  ORDER BY r.name`

	var names []string
	if err := r.db.SelectContext(ctx, &names, query, userID); err != nil {
		return nil, err
	}
	return names, nil
}

// GetUserPermissions flattens the permission arrays of the user's unexpired
// roles. Duplicates across roles are preserved; callers fold the result into
// a set.
func (r *RoleRepository) GetUserPermissions(ctx context.Context, userID string) ([]string, error) {
	query := `SELECT r.permissions
			  FROM roles r
			  JOIN user_roles ur ON ur.role_id = r.id
			  WHERE ur.user_id = $1 AND (ur.expires_at IS NULL OR ur.expires_at > now())`

	rows, err := r.db.QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var permissions []string
	for rows.Next() {
		var permissionsJSON []byte
		if err := rows.Scan(&permissionsJSON); err != nil {
			return nil, err
		}
		var perms []string
		if err := json.Unmarshal(permissionsJSON, &perms); err != nil {
			return nil, err
		}
		permissions = append(permissions, perms...)
	}

	return permissions, rows.Err()
}
