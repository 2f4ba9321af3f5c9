package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/streamworks/edge-auth/internal/models"
)

type Storage struct {
	db *sql.DB
	*UserRepository
	*RefreshTokenRepository
	*SessionRepository
	*BlacklistRepository
	*AuditRepository
}

func NewStorage(db *sql.DB) *Storage {
	return &Storage{
		db:                     db,
		UserRepository:         NewUserRepository(db),
		RefreshTokenRepository: NewRefreshTokenRepository(db),
		SessionRepository:      NewSessionRepository(db),
		BlacklistRepository:    NewBlacklistRepository(db),
		AuditRepository:        NewAuditRepository(db),
	}
}

// RotateRefreshToken revokes the old token and inserts its successor in one
// transaction. Revocation is guarded on revoked_at IS NULL, so two racing
// rotations of the same token cannot both succeed.
func (s *Storage) RotateRefreshToken(ctx context.Context, oldID int64, reason string, next *models.RefreshToken) (*models.RefreshToken, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	tokenRepoTx := NewRefreshTokenRepository(tx)

	if err := tokenRepoTx.RevokeRefreshToken(ctx, oldID, reason); err != nil {
		return nil, fmt.Errorf("failed to revoke old token in tx: %w", err)
	}

	created, err := tokenRepoTx.CreateRefreshToken(ctx, next)
	if err != nil {
		return nil, fmt.Errorf("failed to create new token in tx: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return created, nil
}
