package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sevarahealth/sevara/internal/models"
)

// AuditLogFilter narrows audit log queries.
type AuditLogFilter struct {
	Action models.AuditAction
	Limit  int
	Offset int
}

func insertAuditLogTx(ctx context.Context, tx pgx.Tx, log *models.AuditLog) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO audit_logs (id, org_id, user_id, action, resource_type, resource_id, result, ip_address, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, log.ID, log.OrgID, log.UserID, string(log.Action), log.ResourceType, log.ResourceID,
		string(log.Result), log.IPAddress, log.UserAgent, log.Details, log.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// CreateAuditLog writes a standalone audit entry outside any transaction.
func (db *DB) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO audit_logs (id, org_id, user_id, action, resource_type, resource_id, result, ip_address, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, log.ID, log.OrgID, log.UserID, string(log.Action), log.ResourceType, log.ResourceID,
		string(log.Result), log.IPAddress, log.UserAgent, log.Details, log.CreatedAt)
	if err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

// GetAuditLogsByOrgID returns audit entries for an organization, newest first.
func (db *DB) GetAuditLogsByOrgID(ctx context.Context, orgID uuid.UUID, filter AuditLogFilter) ([]*models.AuditLog, error) {
	where := []string{"org_id = $1"}
	args := []any{orgID}

	if filter.Action != "" {
		args = append(args, string(filter.Action))
		where = append(where, fmt.Sprintf("action = $%d", len(args)))
	}

	limit := filter.Limit
	if limit < 1 || limit > 500 {
		limit = 100
	}
	args = append(args, limit, filter.Offset)

	query := fmt.Sprintf(`
		SELECT id, org_id, user_id, action, resource_type, resource_id, result, ip_address, user_agent, details, created_at
		FROM audit_logs
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.AuditLog
	for rows.Next() {
		var l models.AuditLog
		var actionStr, resultStr string
		var ipAddress, userAgent, details *string
		err := rows.Scan(&l.ID, &l.OrgID, &l.UserID, &actionStr, &l.ResourceType, &l.ResourceID,
			&resultStr, &ipAddress, &userAgent, &details, &l.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		l.Action = models.AuditAction(actionStr)
		l.Result = models.AuditResult(resultStr)
		l.IPAddress = deref(ipAddress)
		l.UserAgent = deref(userAgent)
		l.Details = deref(details)
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

// CountAuditLogsByOrgID returns the total audit entries for an organization.
func (db *DB) CountAuditLogsByOrgID(ctx context.Context, orgID uuid.UUID, filter AuditLogFilter) (int64, error) {
	where := "org_id = $1"
	args := []any{orgID}
	if filter.Action != "" {
		args = append(args, string(filter.Action))
		where += " AND action = $2"
	}

	var count int64
	err := db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_logs WHERE "+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count audit logs: %w", err)
	}
	return count, nil
}
