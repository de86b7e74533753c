package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths lists URL paths that should bypass authentication. These are
// infrastructure endpoints (root, health checks) and the credential
// endpoints that must be reachable before a token exists.
var publicPaths = map[string]bool{
	"/":                true,
	"/health":          true,
	"/health/db":       true,
	"/register-doctor": true,
	"/login":           true,
}

// AuthSkipper returns true for requests whose path should skip
// authentication. Pass this function as the Skipper on JWTConfig so that the
// health-check and credential endpoints remain accessible without a bearer
// token.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether the given path is a public endpoint that
// should bypass the auth middleware.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
