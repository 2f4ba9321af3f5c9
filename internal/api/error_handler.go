package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/streamworks/edge-auth/internal/models"
	"github.com/streamworks/edge-auth/internal/service"
	"github.com/streamworks/edge-auth/internal/util"
)

func ErrorHandler(log *zap.SugaredLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, message := classifyError(err)

		if status == http.StatusInternalServerError {
			log.Errorw("HTTP error", "error", err, "uri", c.Request().RequestURI)
			message = "internal server error"
		}

		if jsonErr := c.JSON(status, models.APIResponse{Success: false, Message: message}); jsonErr != nil {
			log.Errorw("failed to write json response", "error", jsonErr)
		}
	}
}

func classifyError(err error) (int, string) {
	var respErr util.ResponseError
	if errors.As(err, &respErr) {
		return respErr.Status, respErr.Msg
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		if msg, ok := httpErr.Message.(string); ok {
			return httpErr.Code, msg
		}
		return httpErr.Code, http.StatusText(httpErr.Code)
	}

	switch {
	case isUnauthorizedTokenError(err):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, ErrInsufficientRole):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, ErrRateLimitExceeded), errors.Is(err, ErrLoginRateLimited):
		return http.StatusTooManyRequests, err.Error()
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrAccountLocked),
		errors.Is(err, service.ErrAccountDisabled),
		errors.Is(err, service.ErrUsernameTaken):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func isUnauthorizedTokenError(err error) bool {
	return errors.Is(err, ErrAuthHeaderMissing) ||
		errors.Is(err, ErrAuthHeaderMalformed) ||
		errors.Is(err, service.ErrTokenExpired) ||
		errors.Is(err, service.ErrTokenInvalid) ||
		errors.Is(err, service.ErrTokenMalformed) ||
		errors.Is(err, service.ErrTokenRevoked) ||
		errors.Is(err, service.ErrRefreshTokenInvalid) ||
		errors.Is(err, service.ErrRefreshTokenExpired) ||
		errors.Is(err, service.ErrRefreshTokenRevoked)
}
