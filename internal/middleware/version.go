package middleware

import (
	"github.com/labstack/echo/v4"
)

// VersionHeader stamps every response with the API and server versions so
// dashboard clients can detect a stale deployment.
func VersionHeader(apiVersion, serverVersion string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-API-Version", apiVersion)
			h.Set("X-Server-Version", serverVersion)
			return next(c)
		}
	}
}
