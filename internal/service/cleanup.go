package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StartCleanupSweeper runs the expired-token sweep on a fixed interval until
// the context is cancelled. The sweep is idempotent, so overlapping runs
// (e.g. the admin endpoint firing mid-interval) are harmless.
func StartCleanupSweeper(ctx context.Context, tokens *TokenService, interval time.Duration, log *zap.SugaredLogger) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, _, err := tokens.CleanupExpiredTokens(ctx); err != nil {
					log.Errorw("token cleanup sweep failed", "error", err)
				}
			}
		}
	}()
}
