package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass RequireToken. The login and refresh routes are how a
// console user obtains a token in the first place.
var publicPaths = map[string]bool{
	"/health":              true,
	"/api/v1/auth/login":   true,
	"/api/v1/auth/refresh": true,
	"/api/v1/auth/session": true,
}

// AuthSkipper returns true for requests whose route should skip the token
// requirement.
func AuthSkipper(c echo.Context) bool {
	return IsPublicPath(c.Path()) || IsPublicPath(c.Request().URL.Path)
}

func IsPublicPath(path string) bool {
	return publicPaths[path]
}
