package api

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/streamworks/edge-auth/internal/models"
	"github.com/streamworks/edge-auth/internal/routes"
)

// AuthorizationMiddleware enforces the restricted-route table. Only
// explicitly listed routes are gated (default-allow); a caller passes when
// it holds at least one of the required roles.
func AuthorizationMiddleware(classifier *routes.Classifier, log *zap.SugaredLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !classifier.IsSecured(req.URL.Path) {
				return next(c)
			}

			required := classifier.RequiredRoles(req.Method, req.URL.Path)
			if required == nil {
				return next(c)
			}

			roles := ContextRoles(c)
			if !hasAnyRole(roles, required) {
				log.Warnw("access denied",
					"correlationID", c.Get(models.CtxCorrelationID),
					"path", req.URL.Path,
					"roles", roles,
					"required", required,
				)
				return ErrInsufficientRole
			}

			return next(c)
		}
	}
}

func hasAnyRole(held, required []string) bool {
	for _, r := range required {
		for _, h := range held {
			if h == r {
				return true
			}
		}
	}
	return false
}
