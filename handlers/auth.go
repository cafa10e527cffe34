package handlers

import (
	"net/http"

	"github.com/labstack/echo/v5"
)

// RequireAdmin checks the static bearer secret every authority
// endpoint is protected by. A missing server-side secret is a
// configuration fault, not an auth failure.
func RequireAdmin(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if secret == "" {
				return c.JSON(http.StatusInternalServerError, map[string]string{
					"error": "Server misconfigured",
				})
			}

			auth := c.Request().Header.Get("Authorization")
			if auth != "Bearer "+secret {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "Unauthorized",
				})
			}

			return next(c)
		}
	}
}
