package api

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/streamworks/edge-auth/internal/models"
	"github.com/streamworks/edge-auth/internal/util"
)

// GetLoggerMiddlewareConfig wires the access log. It wraps the whole chain,
// so every request is recorded with its final status and latency regardless
// of which downstream filter terminated it.
func GetLoggerMiddlewareConfig(log *zap.SugaredLogger) echomiddleware.RequestLoggerConfig {
	return echomiddleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,

		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			caller := "anonymous"
			if id := ContextUserID(c); id != 0 {
				caller = c.Request().Header.Get(models.HeaderUserID)
			}

			fields := []interface{}{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"ip", util.ClientIP(c.Request()),
				"caller", caller,
				"correlationID", c.Get(models.CtxCorrelationID),
			}
			if v.Error != nil {
				fields = append(fields, "error", v.Error)
				log.Warnw("request", fields...)
			} else {
				log.Infow("request", fields...)
			}
			return nil
		},
	}
}
