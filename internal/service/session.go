package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/streamworks/edge-auth/internal/models"
	"github.com/streamworks/edge-auth/internal/storage"
)

// SessionRegistry tracks one device session per live refresh token. The row
// is created at login, rebound across rotations and deactivated on logout.
// Deactivation and refresh-token revocation are two independent writes; a
// crash between them is tolerated because a revoked token fails validation
// regardless of session state.
type SessionRegistry struct {
	sessions storage.SessionRepository
	log      *zap.SugaredLogger
}

func NewSessionRegistry(sessions storage.SessionRepository, log *zap.SugaredLogger) *SessionRegistry {
	return &SessionRegistry{sessions: sessions, log: log}
}

func (sr *SessionRegistry) CreateSession(ctx context.Context, userID, refreshTokenID int64, deviceInfo, ip, userAgent string) (*models.UserSession, error) {
	session := &models.UserSession{
		UserID:         userID,
		RefreshTokenID: refreshTokenID,
		DeviceInfo:     deviceInfo,
		IPAddress:      ip,
		UserAgent:      userAgent,
	}
	created, err := sr.sessions.CreateSession(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return created, nil
}

// Touch rebinds the session to the successor refresh token and bumps
// last_access_at. Session identity persists across rotation.
func (sr *SessionRegistry) Touch(ctx context.Context, oldTokenID, newTokenID int64) error {
	if err := sr.sessions.RebindSession(ctx, oldTokenID, newTokenID, time.Now()); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (sr *SessionRegistry) Deactivate(ctx context.Context, refreshTokenID int64) error {
	if err := sr.sessions.DeactivateSession(ctx, refreshTokenID); err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil
		}
		return fmt.Errorf("deactivate session: %w", err)
	}
	return nil
}

func (sr *SessionRegistry) DeactivateAll(ctx context.Context, userID int64) (int64, error) {
	n, err := sr.sessions.DeactivateAllUserSessions(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("deactivate user sessions: %w", err)
	}
	sr.log.Infow("deactivated sessions", "userID", userID, "count", n)
	return n, nil
}

func (sr *SessionRegistry) ListActive(ctx context.Context, userID int64) ([]models.UserSession, error) {
	sessions, err := sr.sessions.ListActiveSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}
