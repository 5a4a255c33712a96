package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/account-authority/internal/apperr"
	"github.com/iliyamo/account-authority/internal/logging"
)

// StatusOf maps an error kind to its HTTP status. This is the only place in
// the service where kinds meet status codes.
func StatusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.Authentication:
		return http.StatusUnauthorized
	case apperr.Authorization:
		return http.StatusForbidden
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// NewHTTPErrorHandler renders every error returned by handlers and
// middleware as {success:false,error:{message}}. Server-side failures are
// logged with their cause; the body only ever carries a generic message.
func NewHTTPErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, detail := describe(err, c)
		if status >= http.StatusInternalServerError {
			req := c.Request()
			logging.LogError(logger, "request failed", err, "method", req.Method, "path", req.URL.Path)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, errorEnvelope{Success: false, Error: detail})
		}
		if werr != nil {
			logger.Error("write error response failed", "error", werr)
		}
	}
}

func describe(err error, c echo.Context) (int, errorDetail) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return StatusOf(ae.Kind), errorDetail{Message: apperr.MessageOf(err), Field: ae.Field}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Code == http.StatusNotFound {
			return http.StatusNotFound, errorDetail{Message: fmt.Sprintf("Route %s not found", c.Request().URL.RequestURI())}
		}
		if he.Code >= http.StatusInternalServerError {
			return he.Code, errorDetail{Message: apperr.MessageOf(err)}
		}
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		return he.Code, errorDetail{Message: msg}
	}

	return http.StatusInternalServerError, errorDetail{Message: apperr.MessageOf(err)}
}
