package store

import (
	"context"
	"database/sql"
	"fmt"

	"collectibles-market/internal/models"

	sq "github.com/Masterminds/squirrel"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// InsertAuditLog appends an immutable moderation record
func (s *Store) InsertAuditLog(ctx context.Context, entry *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (admin_id, action, entity_type, entity_id, details)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, entry, query,
		entry.AdminID, entry.Action, entry.EntityType, entry.EntityID, entry.Details)
}

// ListAuditLogs returns audit records, optionally filtered by entity type,
// newest first
func (s *Store) ListAuditLogs(ctx context.Context, entityType string, limit, offset int) ([]models.AuditLog, error) {
	builder := psql.Select("*").
		From("audit_logs").
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset))

	if entityType != "" {
		builder = builder.Where(sq.Eq{"entity_type": entityType})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build audit log query: %w", err)
	}

	var logs []models.AuditLog
	err = s.db.SelectContext(ctx, &logs, query, args...)
	return logs, err
}

// CreateFraudReport files a new report in PENDING state
func (s *Store) CreateFraudReport(ctx context.Context, report *models.FraudReport) error {
	query := `
		INSERT INTO fraud_reports (reported_by, reported_user_id, description, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, report, query,
		report.ReportedBy, report.ReportedUserID, report.Description, report.Status)
}

// GetFraudReport retrieves a fraud report by ID
func (s *Store) GetFraudReport(ctx context.Context, id int64) (*models.FraudReport, error) {
	var report models.FraudReport
	err := s.db.GetContext(ctx, &report, "SELECT * FROM fraud_reports WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("fraud report not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// ResolveFraudReport records a moderator's decision on a report
func (s *Store) ResolveFraudReport(ctx context.Context, id int64, status string, resolvedBy int64, notes string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE fraud_reports
		SET status = $1, resolved_by = $2, resolution_notes = $3, updated_at = NOW()
		WHERE id = $4`,
		status, resolvedBy, notes, id)
	return err
}

// ListFraudReports returns fraud reports, optionally filtered by status,
// newest first
func (s *Store) ListFraudReports(ctx context.Context, status string, limit, offset int) ([]models.FraudReport, error) {
	builder := psql.Select("*").
		From("fraud_reports").
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset))

	if status != "" {
		builder = builder.Where(sq.Eq{"status": status})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build fraud report query: %w", err)
	}

	var reports []models.FraudReport
	err = s.db.SelectContext(ctx, &reports, query, args...)
	return reports, err
}

// DashboardStats aggregates the counters the moderation dashboard shows
type DashboardStats struct {
	TotalUsers       int `db:"total_users" json:"total_users"`
	ActiveAuctions   int `db:"active_auctions" json:"active_auctions"`
	PendingItems     int `db:"pending_items" json:"pending_items"`
	OpenFraudReports int `db:"open_fraud_reports" json:"open_fraud_reports"`
	FrozenUsers      int `db:"frozen_users" json:"frozen_users"`
}

// GetDashboardStats computes the moderation dashboard counters
func (s *Store) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	var stats DashboardStats
	err := s.db.GetContext(ctx, &stats, `
		SELECT
			(SELECT COUNT(*) FROM users)                                  AS total_users,
			(SELECT COUNT(*) FROM auctions WHERE status = 'ACTIVE')       AS active_auctions,
			(SELECT COUNT(*) FROM items WHERE status = 'PENDING_APPROVAL') AS pending_items,
			(SELECT COUNT(*) FROM fraud_reports WHERE status = 'PENDING') AS open_fraud_reports,
			(SELECT COUNT(*) FROM users WHERE is_frozen)                  AS frozen_users`)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
