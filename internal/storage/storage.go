package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/streamworks/edge-auth/internal/models"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserExists           = errors.New("user already exists")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrSessionNotFound      = errors.New("session not found")
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so repositories can run
// inside or outside a transaction unchanged.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Storage interface {
	UserRepository
	RefreshTokenRepository
	SessionRepository
	BlacklistRepository
	AuditRepository
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateLoginState(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, userID int64, passwordHash string, changedAt time.Time) error
	UpdateUserStatus(ctx context.Context, userID int64, status models.UserStatus) error
}

type RefreshTokenRepository interface {
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) (*models.RefreshToken, error)
	GetRefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error)
	// RotateRefreshToken atomically revokes the old token and inserts its
	// successor; the old token must never validate again afterwards.
	RotateRefreshToken(ctx context.Context, oldID int64, reason string, next *models.RefreshToken) (*models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id int64, reason string) error
	RevokeAllUserTokens(ctx context.Context, userID int64, reason string) (int64, error)
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

type SessionRepository interface {
	CreateSession(ctx context.Context, session *models.UserSession) (*models.UserSession, error)
	GetSessionByRefreshTokenID(ctx context.Context, refreshTokenID int64) (*models.UserSession, error)
	// RebindSession moves the session row to the successor refresh token and
	// bumps last_access_at; the row itself survives rotation.
	RebindSession(ctx context.Context, oldTokenID, newTokenID int64, at time.Time) error
	DeactivateSession(ctx context.Context, refreshTokenID int64) error
	DeactivateAllUserSessions(ctx context.Context, userID int64) (int64, error)
	ListActiveSessions(ctx context.Context, userID int64) ([]models.UserSession, error)
}

type BlacklistRepository interface {
	// AddBlacklistEntry is idempotent on jti.
	AddBlacklistEntry(ctx context.Context, entry *models.BlacklistEntry) error
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
	DeleteExpiredBlacklistEntries(ctx context.Context, now time.Time) (int64, error)
}

// BlacklistCache is the fast edge-facing view of the blacklist. Entries
// carry a TTL mirroring the token expiry so they self-prune.
type BlacklistCache interface {
	Put(ctx context.Context, jti string, reason string, ttl time.Duration) error
	Contains(ctx context.Context, jti string) (bool, error)
}

// CounterStore backs the fixed-window rate limiter. Increment bumps the
// bucket and sets the window TTL only when the counter is first created;
// correctness rests on the atomicity of the underlying increment.
type CounterStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

type AuditRepository interface {
	AppendAuditRecord(ctx context.Context, rec *models.AuditRecord) error
	// ListAuditRecords returns the newest records first, optionally scoped
	// to a single user.
	ListAuditRecords(ctx context.Context, userID *int64, limit int) ([]models.AuditRecord, error)
}
