package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/streamworks/edge-auth/internal/models"
	"github.com/streamworks/edge-auth/internal/storage"
)

type UserRepository struct {
	db storage.DBTX
}

func NewUserRepository(db storage.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, email, password_hash, status, roles, permissions,
	failed_login_attempts, locked_until, last_login_at, last_login_ip, password_changed_at, created_at`

func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	query := `INSERT INTO users (username, email, password_hash, status, roles, permissions)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (username) DO NOTHING
		RETURNING id, created_at`
	err := r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Status,
		pq.Array(user.Roles),
		pq.Array(user.Permissions),
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (r *UserRepository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1 OR email = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, username))
}

// UpdateLoginState persists the lockout counters and last-login fields.
func (r *UserRepository) UpdateLoginState(ctx context.Context, user *models.User) error {
	query := `UPDATE users SET status = $2, failed_login_attempts = $3, locked_until = $4,
		last_login_at = $5, last_login_ip = $6 WHERE id = $1`
	_, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Status,
		user.FailedLoginAttempts,
		user.LockedUntil,
		user.LastLoginAt,
		user.LastLoginIP,
	)
	if err != nil {
		return fmt.Errorf("failed to update login state: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, userID int64, passwordHash string, changedAt time.Time) error {
	query := `UPDATE users SET password_hash = $2, password_changed_at = $3 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, userID, passwordHash, changedAt)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdateUserStatus(ctx context.Context, userID int64, status models.UserStatus) error {
	query := `UPDATE users SET status = $2, failed_login_attempts = 0, locked_until = NULL WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, userID, status)
	if err != nil {
		return fmt.Errorf("failed to update user status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update user status: %w", err)
	}
	if affected == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	var roles, permissions pq.StringArray
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Status,
		&roles,
		&permissions,
		&user.FailedLoginAttempts,
		&user.LockedUntil,
		&user.LastLoginAt,
		&user.LastLoginIP,
		&user.PasswordChangedAt,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.Roles = roles
	user.Permissions = permissions
	return &user, nil
}
