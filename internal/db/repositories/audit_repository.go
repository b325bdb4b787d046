// audit_repository.go implements AuditRepository, providing database queries
// for writing and retrieving audit log entries with support for filtered
// queries across users, actions, and resources. The table is append-only:
// there is no update path, and the only delete is retention cleanup.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/admin-backend/admin-backend/internal/db/models"
)

// AuditRepository handles audit log database operations
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilters contains optional filters for querying a tenant's audit logs
type AuditFilters struct {
	UserID       *string
	Action       *string
	ResourceType *string
	ResourceID   *string
	StartDate    *time.Time
	EndDate      *time.Time
}

const auditColumns = `id, tenant_id, user_id, action, resource_type, resource_id, details, ip_address, user_agent, created_at`

func scanAuditLog(row interface {
	Scan(dest ...interface{}) error
}) (*models.AuditLog, error) {
	var entry models.AuditLog
	var detailsJSON []byte
	err := row.Scan(&entry.ID, &entry.TenantID, &entry.UserID, &entry.Action,
		&entry.ResourceType, &entry.ResourceID, &detailsJSON,
		&entry.IPAddress, &entry.UserAgent, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(detailsJSON) > 0 {
		if err := json.Unmarshal(detailsJSON, &entry.Details); err != nil {
			return nil, err
		}
	}
	return &entry, nil
}

// Create appends a new audit log entry
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	entry.ID = uuid.New().String()
	entry.CreatedAt = time.Now().UTC()

	// Marshal details to JSONB; nil stays NULL
	var detailsJSON []byte
	var err error
	if entry.Details != nil {
		detailsJSON, err = json.Marshal(entry.Details)
		if err != nil {
			return err
		}
	}

	query := `INSERT INTO audit_logs (id, tenant_id, user_id, action, resource_type, resource_id, details, ip_address, user_agent, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID, entry.TenantID, entry.UserID, entry.Action,
		entry.ResourceType, entry.ResourceID, detailsJSON,
		entry.IPAddress, entry.UserAgent, entry.CreatedAt)
	return err
}

// ListByTenant returns a page of a tenant's audit logs matching the filters,
// newest first, together with the total matching count.
func (r *AuditRepository) ListByTenant(ctx context.Context, tenantID string, filters AuditFilters, limit, offset int) ([]*models.AuditLog, int, error) {
	where := "WHERE tenant_id = $1"
	args := []interface{}{tenantID}
	paramIndex := 2

	if filters.UserID != nil {
		where += fmt.Sprintf(" AND user_id = $%d", paramIndex)
		args = append(args, *filters.UserID)
		paramIndex++
	}
	if filters.Action != nil {
		where += fmt.Sprintf(" AND action = $%d", paramIndex)
		args = append(args, *filters.Action)
		paramIndex++
	}
	if filters.ResourceType != nil {
		where += fmt.Sprintf(" AND resource_type = $%d", paramIndex)
		args = append(args, *filters.ResourceType)
		paramIndex++
	}
	if filters.ResourceID != nil {
		where += fmt.Sprintf(" AND resource_id = $%d", paramIndex)
		args = append(args, *filters.ResourceID)
		paramIndex++
	}
	if filters.StartDate != nil {
		where += fmt.Sprintf(" AND created_at >= $%d", paramIndex)
		args = append(args, *filters.StartDate)
		paramIndex++
	}
	if filters.EndDate != nil {
		where += fmt.Sprintf(" AND created_at <= $%d", paramIndex)
		args = append(args, *filters.EndDate)
		paramIndex++
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM audit_logs " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("SELECT %s FROM audit_logs %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		auditColumns, where, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []*models.AuditLog
	for rows.Next() {
		entry, err := scanAuditLog(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}

	return entries, total, rows.Err()
}

// GetStatistics summarises a tenant's audit activity: total entries, entries
// in the last 24 hours, and the ten most frequent actions.
func (r *AuditRepository) GetStatistics(ctx context.Context, tenantID string) (*models.AuditStatistics, error) {
	stats := &models.AuditStatistics{CountsByAction: map[string]int64{}}

	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_logs WHERE tenant_id = $1`, tenantID).Scan(&stats.TotalEntries)
	if err != nil {
		return nil, err
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_logs WHERE tenant_id = $1 AND created_at >= now() - interval '24 hours'`,
		tenantID).Scan(&stats.EntriesLast24h)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT action, COUNT(*) AS count FROM audit_logs
		 WHERE tenant_id = $1
		 GROUP BY action
		 ORDER BY count DESC, action
		 LIMIT 10`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var action string
		var count int64
		if err := rows.Scan(&action, &count); err != nil {
			return nil, err
		}
		stats.CountsByAction[action] = count
	}

	return stats, rows.Err()
}

// DeleteOlderThan removes audit entries created before the cutoff and returns
// how many were deleted. Used by the retention job.
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
