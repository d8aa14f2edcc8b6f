package middleware

import (
	"net/http"
	"strings"

	"p2p-lending-backend/internal/auth"

	"github.com/labstack/echo/v4"
)

const identityKey = "identity"

type errBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// JWTAuth validates the bearer token and puts the caller's identity on both
// the echo context and the request context.
func JWTAuth(m *auth.JWTManager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(h, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, errBody{Error: auth.ErrMissingToken.Error(), Code: "UNAUTHORIZED"})
			}
			id, err := m.Validate(strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, errBody{Error: auth.ErrInvalidToken.Error(), Code: "UNAUTHORIZED"})
			}
			c.Set(identityKey, id)
			c.SetRequest(c.Request().WithContext(auth.WithIdentity(c.Request().Context(), id)))
			return next(c)
		}
	}
}

// Identity returns the caller set by JWTAuth.
func Identity(c echo.Context) (auth.Identity, bool) {
	id, ok := c.Get(identityKey).(auth.Identity)
	return id, ok
}

// RequireRole lets through only callers holding one of roles.
func RequireRole(roles ...auth.Role) echo.MiddlewareFunc {
	allowed := make(map[auth.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := Identity(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, errBody{Error: auth.ErrMissingToken.Error(), Code: "UNAUTHORIZED"})
			}
			if !allowed[id.Role] {
				return c.JSON(http.StatusForbidden, errBody{Error: "forbidden", Code: "FORBIDDEN"})
			}
			return next(c)
		}
	}
}
