package http

import (
	"net/http"
	"strconv"
	"strings"

	"p2p-lending-backend/internal/adapter/middleware"
	"p2p-lending-backend/internal/apperror"
	"p2p-lending-backend/internal/auth"

	"github.com/labstack/echo/v4"
)

func containsFieldMsg(list []FieldError, field, substr string) bool {
	for _, e := range list {
		if e.Field == field && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func invalidBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body", Code: apperror.KindValidation.String()})
}

// bindValid binds the JSON body and runs struct validation. A non-nil error
// has already been written to the response.
func bindValid(c echo.Context, req any) (bool, error) {
	if err := c.Bind(req); err != nil {
		return false, invalidBody(c)
	}
	if err := c.Validate(req); err != nil {
		return false, c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation failed",
			Code:    apperror.KindValidation.String(),
			Details: ToFieldErrors(err),
		})
	}
	return true, nil
}

func caller(c echo.Context) auth.Identity {
	id, _ := middleware.Identity(c)
	return id
}

// queryInt reads an optional positive integer query parameter.
func queryInt(c echo.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.Field(name, "must be a non-negative integer")
	}
	return n, nil
}

func pageParams(c echo.Context) (page, size int, err error) {
	if page, err = queryInt(c, "page"); err != nil {
		return 0, 0, err
	}
	size, err = queryInt(c, "page_size")
	return page, size, err
}
