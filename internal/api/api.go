package api

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	oapimiddleware "github.com/oapi-codegen/echo-middleware"
	"go.uber.org/zap"

	"github.com/streamworks/edge-auth/internal/controller"
	"github.com/streamworks/edge-auth/internal/routes"
	"github.com/streamworks/edge-auth/internal/service"
	"github.com/streamworks/edge-auth/internal/util"
)

const shutdownTimeout = 5 * time.Second

type API struct {
	server          *echo.Echo
	controller      *controller.Controller
	classifier      *routes.Classifier
	tokens          *service.TokenService
	rateLimiter     *RateLimiter
	upstreams       map[string]string
	log             *zap.SugaredLogger
	gracefulTimeout time.Duration
	cleanupFuncs    []func()
}

func NewAPI(
	c *controller.Controller,
	classifier *routes.Classifier,
	tokens *service.TokenService,
	rateLimiter *RateLimiter,
	upstreams map[string]string,
	sc *util.ServerConfig,
	l *zap.SugaredLogger,
	cleanupFuncs []func(),
) *API {
	e := echo.New()

	e.HideBanner = true
	e.Server.Addr = sc.ServerAddr
	e.Server.WriteTimeout = sc.WriteTimeout
	e.Server.ReadTimeout = sc.ReadTimeout
	e.Server.IdleTimeout = sc.IdleTimeout
	e.HTTPErrorHandler = ErrorHandler(l)

	return &API{
		server:          e,
		controller:      c,
		classifier:      classifier,
		tokens:          tokens,
		rateLimiter:     rateLimiter,
		upstreams:       upstreams,
		log:             l,
		gracefulTimeout: sc.GracefulTimeout,
		cleanupFuncs:    cleanupFuncs,
	}
}

func (a *API) Run(ctxBackground context.Context) {
	ctx, stop := signal.NotifyContext(ctxBackground, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	swagger, err := controller.GetSwagger()
	if err != nil {
		a.log.Fatalf("Failed to load OpenAPI specification: %v", err)
	}
	swagger.Servers = nil

	/* Порядок фильтров фиксирован: access-лог оборачивает всё,
	IP-лимитер работает до аутентификации, пользовательский лимитер
	после нее, когда identity уже установлена. */
	a.server.Use(echomiddleware.RequestLoggerWithConfig(GetLoggerMiddlewareConfig(a.log)))
	a.server.Use(a.rateLimiter.LimitByIP())
	a.server.Use(AuthenticationMiddleware(a.classifier, a.tokens, a.log))
	a.server.Use(a.rateLimiter.LimitByUser())
	a.server.Use(AuthorizationMiddleware(a.classifier, a.log))

	controller.RegisterHandlers(a.server, a.controller, oapimiddleware.OapiRequestValidator(swagger))

	if err := RegisterUpstreams(a.server, a.upstreams, a.log); err != nil {
		a.log.Fatalf("Failed to register upstreams: %v", err)
	}
	a.server.RouteNotFound("/*", a.controller.Fallback)

	a.ListenGracefulShutdown(ctx)
}

func (a *API) ListenGracefulShutdown(ctx context.Context) {
	go func() {
		err := a.server.Start(a.server.Server.Addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()
	a.log.Infof("Listening on: %s", a.server.Server.Addr)

	<-ctx.Done()
	a.log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := a.server.Shutdown(shutdownCtx)
	if err != nil {
		a.log.Errorf("shutdown: %v", err)
	}

	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}

	longShutdown := make(chan struct{}, 1)

	go func() {
		time.Sleep(a.gracefulTimeout)
		longShutdown <- struct{}{}
	}()

	select {
	case <-shutdownCtx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			a.log.Info("server shutdown completed")
		} else {
			a.log.Errorf("server shutdown: %v", ctx.Err())
		}
	case <-longShutdown:
		a.log.Infof("finished")
	}
}
