package api

import (
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/streamworks/edge-auth/internal/models"
	"github.com/streamworks/edge-auth/internal/routes"
	"github.com/streamworks/edge-auth/internal/service"
)

const bearerPrefix = "Bearer "

// AuthenticationMiddleware validates bearer tokens on secured paths and
// injects the identity headers consumed downstream. Those headers are the
// only channel by which internal services learn the caller's identity, so
// any client-supplied values are stripped first.
func AuthenticationMiddleware(classifier *routes.Classifier, tokens *service.TokenService, log *zap.SugaredLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			req.Header.Del(models.HeaderUserID)
			req.Header.Del(models.HeaderUserName)
			req.Header.Del(models.HeaderUserRoles)
			req.Header.Del(models.HeaderUserPermissions)

			correlationID := uuid.NewString()
			c.Set(models.CtxCorrelationID, correlationID)
			req.Header.Set(models.HeaderCorrelationID, correlationID)
			c.Response().Header().Set(models.HeaderCorrelationID, correlationID)

			if !classifier.IsSecured(req.URL.Path) {
				return next(c)
			}

			authHeader := req.Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return ErrAuthHeaderMissing
			}
			if !strings.HasPrefix(authHeader, bearerPrefix) {
				return ErrAuthHeaderMalformed
			}
			token := strings.TrimPrefix(authHeader, bearerPrefix)

			claims, err := tokens.ValidateAccessToken(req.Context(), token)
			if err != nil {
				log.Debugw("token validation failed", "correlationID", correlationID, "error", err)
				return err
			}

			userID, err := claims.UserID()
			if err != nil {
				return service.ErrTokenInvalid
			}

			rolesStr := strings.Join(claims.Roles, ",")
			permissionsStr := strings.Join(claims.Permissions, ",")

			req.Header.Set(models.HeaderUserID, claims.Subject)
			req.Header.Set(models.HeaderUserName, claims.Username)
			req.Header.Set(models.HeaderUserRoles, rolesStr)
			req.Header.Set(models.HeaderUserPermissions, permissionsStr)

			c.Set(models.CtxUserID, userID)
			c.Set(models.CtxUsername, claims.Username)
			c.Set(models.CtxRoles, claims.Roles)
			c.Set(models.CtxPermissions, claims.Permissions)
			c.Set(models.CtxAccessToken, token)

			return next(c)
		}
	}
}

// ContextUserID returns the authenticated caller id, or 0 on open paths.
func ContextUserID(c echo.Context) int64 {
	if v, ok := c.Get(models.CtxUserID).(int64); ok {
		return v
	}
	return 0
}

// ContextRoles returns the authenticated caller's roles.
func ContextRoles(c echo.Context) []string {
	if v, ok := c.Get(models.CtxRoles).([]string); ok {
		return v
	}
	return nil
}
