package controller

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/streamworks/edge-auth/internal/models"
	"github.com/streamworks/edge-auth/internal/service"
	"github.com/streamworks/edge-auth/internal/storage"
	"github.com/streamworks/edge-auth/internal/util"
)

type Controller struct {
	zapLogger   *zap.SugaredLogger
	authService *service.AuthService
	tokens      *service.TokenService
}

func NewController(logger *zap.SugaredLogger, authService *service.AuthService, tokens *service.TokenService) *Controller {
	return &Controller{
		zapLogger:   logger,
		authService: authService,
		tokens:      tokens,
	}
}

// RegisterHandlers mounts the locally served routes. The validator middleware
// checks requests under /api/auth against the embedded OpenAPI document.
func RegisterHandlers(e *echo.Echo, c *Controller, validator echo.MiddlewareFunc) {
	auth := e.Group("/api/auth", validator)
	auth.POST("/register", c.Register)
	auth.POST("/login", c.Login)
	auth.POST("/refresh", c.Refresh)
	auth.POST("/logout", c.Logout)
	auth.POST("/logout-all", c.LogoutAll)
	auth.POST("/change-password", c.ChangePassword)
	auth.GET("/validate", c.Validate)
	auth.GET("/me", c.Me)
	auth.GET("/sessions", c.ListSessions)
	auth.DELETE("/sessions/:id", c.RevokeSession)

	admin := e.Group("/api/admin")
	admin.POST("/users/:id/force-logout", c.ForceLogout)
	admin.PUT("/users/:id/status", c.UpdateUserStatus)
	admin.GET("/audit-logs", c.ListAuditLogs)
	admin.POST("/tokens/cleanup", c.Cleanup)

	e.GET("/health", c.Health)
	e.Any("/fallback", c.Fallback)
	e.Any("/fallback/*", c.Fallback)
}

// (POST /api/auth/register).
func (c *Controller) Register(ctx echo.Context) error {
	var req models.RegisterRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	user, err := c.authService.Register(ctx.Request().Context(), req, util.ClientIP(ctx.Request()), ctx.Request().UserAgent())
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusCreated, models.APIResponse{
		Success: true,
		Message: "user registered",
		Data: map[string]interface{}{
			"user_id":  user.ID,
			"username": user.Username,
			"roles":    user.Roles,
		},
	})
}

// (POST /api/auth/login).
func (c *Controller) Login(ctx echo.Context) error {
	var req models.LoginRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.DeviceInfo == "" {
		req.DeviceInfo = ctx.Request().UserAgent()
	}

	resp, err := c.authService.Login(ctx.Request().Context(), req, util.ClientIP(ctx.Request()), ctx.Request().UserAgent())
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, models.APIResponse{Success: true, Data: resp})
}

// (POST /api/auth/refresh).
func (c *Controller) Refresh(ctx echo.Context) error {
	var req models.RefreshRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	resp, err := c.authService.Refresh(ctx.Request().Context(), req.RefreshToken, util.ClientIP(ctx.Request()), ctx.Request().UserAgent())
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, models.APIResponse{Success: true, Data: resp})
}

// (POST /api/auth/logout).
func (c *Controller) Logout(ctx echo.Context) error {
	var req models.LogoutRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	accessToken, _ := ctx.Get(models.CtxAccessToken).(string)
	err := c.authService.Logout(ctx.Request().Context(), req.RefreshToken, accessToken, util.ClientIP(ctx.Request()), ctx.Request().UserAgent())
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, models.APIResponse{Success: true, Message: "logged out"})
}

// (POST /api/auth/logout-all).
func (c *Controller) LogoutAll(ctx echo.Context) error {
	userID := contextUserID(ctx)
	err := c.authService.LogoutAll(ctx.Request().Context(), userID, util.ClientIP(ctx.Request()), ctx.Request().UserAgent())
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, models.APIResponse{Success: true, Message: "all sessions terminated"})
}

// (POST /api/auth/change-password).
func (c *Controller) ChangePassword(ctx echo.Context) error {
	var req models.ChangePasswordRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	userID := contextUserID(ctx)
	err := c.authService.ChangePassword(ctx.Request().Context(), userID, req, util.ClientIP(ctx.Request()), ctx.Request().UserAgent())
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, models.APIResponse{Success: true, Message: "password changed"})
}

// Validate проверяет access токен из заголовка и возвращает claims.
// Открытый маршрут: им пользуются внутренние сервисы вне цепочки фильтров.
// (GET /api/auth/validate).
func (c *Controller) Validate(ctx echo.Context) error {
	authHeader := ctx.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return echo.NewHTTPError(http.StatusBadRequest, "missing bearer token")
	}

	claims, err := c.tokens.ValidateAccessToken(ctx.Request().Context(), strings.TrimPrefix(authHeader, prefix))
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"user_id":     claims.Subject,
			"username":    claims.Username,
			"roles":       claims.Roles,
			"permissions": claims.Permissions,
			"jti":         claims.ID,
			"expires_at":  claims.ExpiresAt.Unix(),
		},
	})
}

// (GET /api/auth/me).
func (c *Controller) Me(ctx echo.Context) error {
	user, err := c.authService.GetUserByID(ctx.Request().Context(), contextUserID(ctx))
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"user_id":     user.ID,
			"username":    user.Username,
			"email":       user.Email,
			"roles":       user.Roles,
			"permissions": user.Permissions,
			"status":      user.Status,
			"created_at":  user.CreatedAt,
		},
	})
}

// (GET /api/auth/sessions).
func (c *Controller) ListSessions(ctx echo.Context) error {
	sessions, err := c.authService.ListSessions(ctx.Request().Context(), contextUserID(ctx))
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, models.APIResponse{Success: true, Data: sessions})
}

// (DELETE /api/auth/sessions/{id}).
func (c *Controller) RevokeSession(ctx echo.Context) error {
	sessionID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}

	err = c.authService.RevokeSession(ctx.Request().Context(), contextUserID(ctx), sessionID, util.ClientIP(ctx.Request()), ctx.Request().UserAgent())
	if errors.Is(err, storage.ErrSessionNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, models.APIResponse{Success: true, Message: "session revoked"})
}

// ForceLogout закрывает все сессии целевого пользователя. Маршрут защищен
// role-правилом /api/admin/** на этапе авторизации.
// (POST /api/admin/users/{id}/force-logout).
func (c *Controller) ForceLogout(ctx echo.Context) error {
	targetID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}

	err = c.authService.ForceLogout(ctx.Request().Context(), contextUserID(ctx), targetID, util.ClientIP(ctx.Request()), ctx.Request().UserAgent())
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, models.APIResponse{Success: true, Message: "user sessions terminated"})
}

// UpdateUserStatus переводит аккаунт между статусами. DISABLED дополнительно
// закрывает все сессии пользователя.
// (PUT /api/admin/users/{id}/status).
func (c *Controller) UpdateUserStatus(ctx echo.Context) error {
	targetID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}

	var req models.UpdateStatusRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	status := models.UserStatus(strings.ToUpper(req.Status))
	err = c.authService.SetUserStatus(ctx.Request().Context(), contextUserID(ctx), targetID, status, util.ClientIP(ctx.Request()), ctx.Request().UserAgent())
	if errors.Is(err, service.ErrInvalidStatus) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown account status")
	}
	if errors.Is(err, storage.ErrUserNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "user status updated",
		Data:    map[string]interface{}{"user_id": targetID, "status": status},
	})
}

// (GET /api/admin/audit-logs).
func (c *Controller) ListAuditLogs(ctx echo.Context) error {
	var userID *int64
	if raw := ctx.QueryParam("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
		}
		userID = &id
	}

	var limit int
	if raw := ctx.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}

	records, err := c.authService.ListAuditLogs(ctx.Request().Context(), userID, limit)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, models.APIResponse{Success: true, Data: records})
}

// (POST /api/admin/tokens/cleanup).
func (c *Controller) Cleanup(ctx echo.Context) error {
	tokens, blacklist, err := c.tokens.CleanupExpiredTokens(ctx.Request().Context())
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"expired_tokens_removed":    tokens,
			"blacklist_entries_removed": blacklist,
		},
	})
}

// (GET /health).
func (c *Controller) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, models.APIResponse{Success: true, Message: "ok"})
}

// Fallback отвечает за маршруты, для которых upstream недоступен или
// не сконфигурирован.
func (c *Controller) Fallback(ctx echo.Context) error {
	return ctx.JSON(http.StatusServiceUnavailable, models.APIResponse{
		Success: false,
		Message: "service temporarily unavailable",
	})
}

func contextUserID(ctx echo.Context) int64 {
	if v, ok := ctx.Get(models.CtxUserID).(int64); ok {
		return v
	}
	return 0
}
