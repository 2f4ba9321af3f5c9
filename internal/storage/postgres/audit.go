package postgres

import (
	"context"
	"fmt"

	"github.com/streamworks/edge-auth/internal/models"
	"github.com/streamworks/edge-auth/internal/storage"
)

type AuditRepository struct {
	db storage.DBTX
}

func NewAuditRepository(db storage.DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) AppendAuditRecord(ctx context.Context, rec *models.AuditRecord) error {
	query := `INSERT INTO audit_logs (user_id, target_user_id, action, ip_address, user_agent, success, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`
	err := r.db.QueryRowContext(
		ctx,
		query,
		rec.UserID,
		rec.TargetUserID,
		rec.Action,
		rec.IPAddress,
		rec.UserAgent,
		rec.Success,
		rec.ErrorMessage,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

func (r *AuditRepository) ListAuditRecords(ctx context.Context, userID *int64, limit int) ([]models.AuditRecord, error) {
	query := `SELECT id, user_id, target_user_id, action, ip_address, user_agent, success, error_message, created_at
		FROM audit_logs
		WHERE $1::bigint IS NULL OR user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	var out []models.AuditRecord
	for rows.Next() {
		var rec models.AuditRecord
		err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.TargetUserID,
			&rec.Action,
			&rec.IPAddress,
			&rec.UserAgent,
			&rec.Success,
			&rec.ErrorMessage,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	return out, nil
}
