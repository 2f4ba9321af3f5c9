package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/streamworks/edge-auth/internal/models"
	"github.com/streamworks/edge-auth/internal/storage"
)

type BlacklistRepository struct {
	db storage.DBTX
}

func NewBlacklistRepository(db storage.DBTX) *BlacklistRepository {
	return &BlacklistRepository{db: db}
}

// AddBlacklistEntry is write-once per jti: a duplicate insert is a no-op.
func (r *BlacklistRepository) AddBlacklistEntry(ctx context.Context, entry *models.BlacklistEntry) error {
	query := `INSERT INTO token_blacklist (jti, user_id, token_type, expires_at, reason)
		VALUES ($1, $2, $3, $4, $5) ON CONFLICT (jti) DO NOTHING`
	_, err := r.db.ExecContext(
		ctx,
		query,
		entry.JTI,
		entry.UserID,
		entry.TokenType,
		entry.ExpiresAt,
		entry.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to insert blacklist entry: %w", err)
	}
	return nil
}

func (r *BlacklistRepository) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM token_blacklist WHERE jti = $1)`
	if err := r.db.QueryRowContext(ctx, query, jti).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return exists, nil
}

func (r *BlacklistRepository) DeleteExpiredBlacklistEntries(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM token_blacklist WHERE expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired blacklist entries: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}
