package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/streamworks/edge-auth/internal/models"
	"github.com/streamworks/edge-auth/internal/storage"
)

type SessionRepository struct {
	db storage.DBTX
}

func NewSessionRepository(db storage.DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) CreateSession(ctx context.Context, session *models.UserSession) (*models.UserSession, error) {
	query := `INSERT INTO user_sessions (user_id, refresh_token_id, device_info, ip_address, user_agent, is_active, last_access_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, NOW()) RETURNING id, is_active, last_access_at, created_at`
	err := r.db.QueryRowContext(
		ctx,
		query,
		session.UserID,
		session.RefreshTokenID,
		session.DeviceInfo,
		session.IPAddress,
		session.UserAgent,
	).Scan(&session.ID, &session.IsActive, &session.LastAccessAt, &session.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return session, nil
}

func (r *SessionRepository) GetSessionByRefreshTokenID(ctx context.Context, refreshTokenID int64) (*models.UserSession, error) {
	var session models.UserSession
	query := `SELECT id, user_id, refresh_token_id, device_info, ip_address, user_agent, is_active, last_access_at, created_at
		FROM user_sessions WHERE refresh_token_id = $1`
	err := r.db.QueryRowContext(ctx, query, refreshTokenID).Scan(
		&session.ID,
		&session.UserID,
		&session.RefreshTokenID,
		&session.DeviceInfo,
		&session.IPAddress,
		&session.UserAgent,
		&session.IsActive,
		&session.LastAccessAt,
		&session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

func (r *SessionRepository) RebindSession(ctx context.Context, oldTokenID, newTokenID int64, at time.Time) error {
	query := `UPDATE user_sessions SET refresh_token_id = $2, last_access_at = $3
		WHERE refresh_token_id = $1 AND is_active`
	_, err := r.db.ExecContext(ctx, query, oldTokenID, newTokenID, at)
	if err != nil {
		return fmt.Errorf("failed to rebind session: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeactivateSession(ctx context.Context, refreshTokenID int64) error {
	query := `UPDATE user_sessions SET is_active = FALSE WHERE refresh_token_id = $1`
	_, err := r.db.ExecContext(ctx, query, refreshTokenID)
	if err != nil {
		return fmt.Errorf("failed to deactivate session: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeactivateAllUserSessions(ctx context.Context, userID int64) (int64, error) {
	query := `UPDATE user_sessions SET is_active = FALSE WHERE user_id = $1 AND is_active`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate user sessions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}

func (r *SessionRepository) ListActiveSessions(ctx context.Context, userID int64) ([]models.UserSession, error) {
	query := `SELECT id, user_id, refresh_token_id, device_info, ip_address, user_agent, is_active, last_access_at, created_at
		FROM user_sessions WHERE user_id = $1 AND is_active ORDER BY last_access_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.UserSession
	for rows.Next() {
		var s models.UserSession
		if err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.RefreshTokenID,
			&s.DeviceInfo,
			&s.IPAddress,
			&s.UserAgent,
			&s.IsActive,
			&s.LastAccessAt,
			&s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return sessions, nil
}
