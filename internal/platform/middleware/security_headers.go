package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	apiCSP = "default-src 'none'; frame-ancestors 'none'"
	// Trend charts are standalone HTML pages that load echarts from the
	// go-echarts asset host and are embedded by the console UI.
	chartCSP = "default-src 'none'; script-src 'unsafe-inline' https://go-echarts.github.io; style-src 'unsafe-inline'; frame-ancestors 'self'"
)

// SecurityHeaders sets response headers for a JSON API that carries
// children's health data.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-XSS-Protection", "0")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			h.Set("Cache-Control", "no-store")

			if strings.HasSuffix(c.Request().URL.Path, "/chart") {
				h.Set("X-Frame-Options", "SAMEORIGIN")
				h.Set("Content-Security-Policy", chartCSP)
			} else {
				h.Set("X-Frame-Options", "DENY")
				h.Set("Content-Security-Policy", apiCSP)
			}

			return next(c)
		}
	}
}
