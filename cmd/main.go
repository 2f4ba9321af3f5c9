package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/streamworks/edge-auth/internal/api"
	"github.com/streamworks/edge-auth/internal/controller"
	"github.com/streamworks/edge-auth/internal/migrations"
	"github.com/streamworks/edge-auth/internal/routes"
	"github.com/streamworks/edge-auth/internal/service"
	"github.com/streamworks/edge-auth/internal/storage/postgres"
	"github.com/streamworks/edge-auth/internal/storage/redis"
	"github.com/streamworks/edge-auth/internal/util"

	_ "github.com/lib/pq"
)

func main() {
	ctx := context.Background()
	logger := util.NewZapLogger()

	db, dbCleanup, err := util.NewDBConnection(logger)
	if err != nil {
		logger.Fatal(zap.Error(err))
	}
	if err := migrations.RunMigrations(db, logger); err != nil {
		logger.Fatal(zap.Error(err))
	}

	redisClient, redisCleanup, err := util.NewRedisClient(logger, util.NewRedisConfig())
	if err != nil {
		logger.Fatal(zap.Error(err))
	}
	cleanupFuncs := []func(){dbCleanup, redisCleanup}

	store := postgres.NewStorage(db)
	blacklistCache := redis.NewBlacklistCache(redisClient)
	counterStore := redis.NewCounterStore(redisClient)

	tokenService := service.NewTokenService(util.NewTokenConfig(), store, store, blacklistCache, logger)
	sessionRegistry := service.NewSessionRegistry(store, logger)
	auditService := service.NewAuditService(store, logger)
	webhookService := service.NewWebhookService(logger, util.GetWebhookURL())
	authService := service.NewAuthService(store, tokenService, sessionRegistry, auditService, webhookService, util.NewLockoutConfig(), logger)

	if err := service.EnsureAdminUser(ctx, store, logger); err != nil {
		logger.Fatal(zap.Error(err))
	}

	cleanupCfg := util.NewCleanupConfig()
	service.StartCleanupSweeper(ctx, tokenService, cleanupCfg.Interval, logger)

	classifier := routes.NewDefaultClassifier()
	rateLimiter := api.NewRateLimiter(util.NewRateLimiterConfig(), counterStore, logger)

	ctrl := controller.NewController(logger, authService, tokenService)

	apiServer := api.NewAPI(ctrl, classifier, tokenService, rateLimiter, util.NewUpstreams(), util.NewServerConfig(), logger, cleanupFuncs)
	apiServer.Run(ctx)
}
