package http

import (
	"errors"
	"log/slog"
	"net/http"

	"p2p-lending-backend/internal/apperror"

	"github.com/labstack/echo/v4"
)

// respondErr renders err as {error, code, details}. Errors outside the
// apperror taxonomy are logged and hidden behind a generic 500.
func respondErr(c echo.Context, err error) error {
	var ae *apperror.Error
	if !errors.As(err, &ae) {
		slog.ErrorContext(c.Request().Context(), "unhandled error",
			"method", c.Request().Method, "path", c.Path(), "err", err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: apperror.KindInternal.String()})
	}
	if ae.Kind == apperror.KindUpstream {
		slog.WarnContext(c.Request().Context(), "upstream failure", "path", c.Path(), "err", ae.Err)
	}
	return c.JSON(ae.Kind.HTTPStatus(), ErrorResponse{Error: ae.Message, Code: ae.Kind.String(), Details: ae.Fields})
}

// ErrorHandler renders errors that escape handlers (routing, binding, panics
// recovered by echo) in the same shape.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok {
			msg = s
		}
		code := "HTTP_" + http.StatusText(he.Code)
		switch he.Code {
		case http.StatusNotFound:
			code = apperror.KindNotFound.String()
		case http.StatusUnauthorized:
			code = apperror.KindUnauthorized.String()
		case http.StatusForbidden:
			code = apperror.KindForbidden.String()
		case http.StatusBadRequest:
			code = apperror.KindValidation.String()
		}
		_ = c.JSON(he.Code, ErrorResponse{Error: msg, Code: code})
		return
	}
	_ = respondErr(c, err)
}
