package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	DoctorIDKey    contextKey = "doctor_id"
	DoctorEmailKey contextKey = "doctor_email"
	UserRolesKey   contextKey = "user_roles"
)

// JWTConfig configures the bearer-token middleware.
type JWTConfig struct {
	// Tokens verifies incoming access tokens.
	Tokens *TokenIssuer
	// Skipper returns true for requests that bypass authentication.
	Skipper func(echo.Context) bool
	// Verify, when set, is called with the token's doctor ID after the
	// signature check. Returning an error rejects the request with 401; this
	// is how a token outlives its doctor account.
	Verify func(ctx context.Context, doctorID string) error
}

// JWTMiddleware returns middleware that authenticates requests with a bearer
// access token. On success the doctor's identity is placed on the request
// context; on failure the request is rejected with 401.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims, err := cfg.Tokens.Parse(parts[1])
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}

			if cfg.Verify != nil {
				if err := cfg.Verify(c.Request().Context(), claims.Subject); err != nil {
					return echo.NewHTTPError(http.StatusUnauthorized, "unknown doctor")
				}
			}

			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, DoctorIDKey, claims.Subject)
			ctx = context.WithValue(ctx, DoctorEmailKey, claims.Email)
			ctx = context.WithValue(ctx, UserRolesKey, claims.Roles)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// DoctorIDFromContext retrieves the authenticated doctor's ID from context.
func DoctorIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(DoctorIDKey).(string)
	return id
}

// EmailFromContext retrieves the authenticated doctor's email from context.
func EmailFromContext(ctx context.Context) string {
	email, _ := ctx.Value(DoctorEmailKey).(string)
	return email
}

// RolesFromContext retrieves the authenticated doctor's roles from context.
func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}
