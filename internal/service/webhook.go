package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	webhookStatusThreshold = 300
	webhookTimeout         = 10 * time.Second
)

// WebhookService pushes security alerts (e.g. a refresh arriving from a new
// IP) to an external receiver. Delivery is best-effort and asynchronous.
type WebhookService struct {
	client     *http.Client
	log        *zap.SugaredLogger
	webhookURL string
}

func NewWebhookService(log *zap.SugaredLogger, webhookURL string) *WebhookService {
	return &WebhookService{
		client:     &http.Client{},
		log:        log,
		webhookURL: webhookURL,
	}
}

func (s *WebhookService) NotifyIPChange(ctx context.Context, userID int64, oldIP, newIP, userAgent string) {
	s.notify(ctx, map[string]interface{}{
		"event":      "refresh_ip_change",
		"user_id":    userID,
		"old_ip":     oldIP,
		"new_ip":     newIP,
		"user_agent": userAgent,
	})
}

func (s *WebhookService) notify(ctx context.Context, data map[string]interface{}) {
	// Delivery outlives the triggering request: its context is cancelled the
	// moment the handler returns, so the alert rides a detached one.
	ctx = context.WithoutCancel(ctx)

	go func() {
		if s.webhookURL == "" {
			return
		}

		ctx, cancel := context.WithTimeout(ctx, webhookTimeout)
		defer cancel()

		payload, err := json.Marshal(data)
		if err != nil {
			s.log.Errorw("failed to marshal webhook payload", "error", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewBuffer(payload))
		if err != nil {
			s.log.Errorw("failed to create webhook request", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			s.log.Errorw("failed to send webhook", "error", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= webhookStatusThreshold {
			s.log.Warnw("webhook returned non-2xx status", "status", resp.StatusCode)
		}
	}()
}
