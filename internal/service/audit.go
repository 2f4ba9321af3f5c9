package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/streamworks/edge-auth/internal/models"
	"github.com/streamworks/edge-auth/internal/storage"
)

// AuditService is the sink for security-relevant events. A failed audit
// write is logged and swallowed: the sink is advisory, the triggering
// operation must not fail because of it.
type AuditService struct {
	audits storage.AuditRepository
	log    *zap.SugaredLogger
}

func NewAuditService(audits storage.AuditRepository, log *zap.SugaredLogger) *AuditService {
	return &AuditService{audits: audits, log: log}
}

func (s *AuditService) LogSuccess(ctx context.Context, userID *int64, action models.AuditAction, ip, userAgent string) {
	s.append(ctx, &models.AuditRecord{
		UserID:    userID,
		Action:    action,
		IPAddress: ip,
		UserAgent: userAgent,
		Success:   true,
	})
}

func (s *AuditService) LogFailure(ctx context.Context, userID *int64, action models.AuditAction, ip, userAgent, errMsg string) {
	s.append(ctx, &models.AuditRecord{
		UserID:       userID,
		Action:       action,
		IPAddress:    ip,
		UserAgent:    userAgent,
		Success:      false,
		ErrorMessage: errMsg,
	})
}

func (s *AuditService) LogAdminAction(ctx context.Context, adminID int64, targetUserID int64, action models.AuditAction, ip, userAgent string) {
	s.append(ctx, &models.AuditRecord{
		UserID:       &adminID,
		TargetUserID: &targetUserID,
		Action:       action,
		IPAddress:    ip,
		UserAgent:    userAgent,
		Success:      true,
	})
}

const (
	defaultAuditListLimit = 100
	maxAuditListLimit     = 1000
)

// List reads back the trail for the admin endpoint, newest first. A zero or
// out-of-range limit falls back to the default.
func (s *AuditService) List(ctx context.Context, userID *int64, limit int) ([]models.AuditRecord, error) {
	if limit <= 0 || limit > maxAuditListLimit {
		limit = defaultAuditListLimit
	}
	return s.audits.ListAuditRecords(ctx, userID, limit)
}

func (s *AuditService) append(ctx context.Context, rec *models.AuditRecord) {
	if err := s.audits.AppendAuditRecord(ctx, rec); err != nil {
		s.log.Errorw("failed to append audit record", "action", rec.Action, "error", err)
	}
}
