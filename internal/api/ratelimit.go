package api

import (
	"context"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/streamworks/edge-auth/internal/storage"
	"github.com/streamworks/edge-auth/internal/util"
)

// RateLimiter implements fixed-window limiting over an atomic counter store.
// Bursts straddling a window boundary can approach double the nominal rate;
// that is the accepted approximation. Counter-store errors fail open.
//
// Limiting runs in two passes around authentication: the IP-scoped pass
// (strict login ceiling, default ceiling) before it, the user-scoped pass
// after it, once the authenticator has established an identity.
type RateLimiter struct {
	cfg      *util.RateLimiterConfig
	counters storage.CounterStore
	log      *zap.SugaredLogger
}

func NewRateLimiter(cfg *util.RateLimiterConfig, counters storage.CounterStore, log *zap.SugaredLogger) *RateLimiter {
	return &RateLimiter{cfg: cfg, counters: counters, log: log}
}

// LimitByIP applies the strict per-IP ceiling on the login endpoint and the
// default per-IP ceiling everywhere else.
func (rl *RateLimiter) LimitByIP() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := util.ClientIP(c.Request())

			key := "ip:" + ip
			limit := rl.cfg.IPLimit
			rejection := ErrRateLimitExceeded
			if c.Request().URL.Path == rl.cfg.LoginPath {
				key = "login:" + ip
				limit = rl.cfg.LoginLimit
				rejection = ErrLoginRateLimited
			}

			allowed, err := rl.allow(c.Request().Context(), key, limit)
			if err != nil {
				rl.log.Warnw("counter store unreachable, failing open", "key", key, "error", err)
				return next(c)
			}
			if !allowed {
				return rl.reject(c, key, rejection)
			}
			return next(c)
		}
	}
}

// LimitByUser applies the looser per-user ceiling. It only fires once the
// authenticator has populated an identity, so it must be registered after it.
func (rl *RateLimiter) LimitByUser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := ContextUserID(c)
			if userID == 0 {
				return next(c)
			}

			key := "user:" + strconv.FormatInt(userID, 10)
			allowed, err := rl.allow(c.Request().Context(), key, rl.cfg.UserLimit)
			if err != nil {
				rl.log.Warnw("counter store unreachable, failing open", "key", key, "error", err)
				return next(c)
			}
			if !allowed {
				return rl.reject(c, key, ErrRateLimitExceeded)
			}
			return next(c)
		}
	}
}

func (rl *RateLimiter) allow(ctx context.Context, key string, limit int) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, rl.cfg.StoreTimeout)
	defer cancel()

	count, err := rl.counters.Increment(ctx, key, rl.cfg.Window)
	if err != nil {
		return false, err
	}
	return count <= int64(limit), nil
}

func (rl *RateLimiter) reject(c echo.Context, key string, rejection error) error {
	rl.log.Warnw("rate limit exceeded", "key", key)
	c.Response().Header().Set("Retry-After", strconv.Itoa(int(rl.cfg.Window.Seconds())))
	return rejection
}
