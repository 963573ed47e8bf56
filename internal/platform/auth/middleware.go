package auth

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/pedsclinic/clinicadmin/internal/platform/apiclient"
)

type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	UserRoleKey contextKey = "user_role"
	ClaimsKey   contextKey = "claims"
)

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	tok := strings.TrimSpace(parts[1])
	return tok, tok != ""
}

// Bearer resolves which token backend calls made for this request will use.
// A caller's own bearer header wins; otherwise the shared session is used.
// The caller identity is put on the request context for auditing.
func Bearer(session *Session) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			var claims *Claims

			if tok, ok := bearerToken(c.Request().Header.Get("Authorization")); ok {
				ctx = apiclient.WithToken(ctx, tok)
				claims, _ = ParseClaims(tok)
			} else if session != nil {
				claims = session.User()
			}

			if claims != nil {
				ctx = withClaims(ctx, claims)
			}
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// RequireToken rejects requests that have neither a bearer header nor a
// live session token. Public paths are let through. It must run after Bearer.
func RequireToken(session *Session) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if AuthSkipper(c) {
				return next(c)
			}
			if _, ok := bearerToken(c.Request().Header.Get("Authorization")); ok {
				return next(c)
			}
			if session != nil && session.Authenticated() {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusUnauthorized, apiclient.ErrMissingToken.Error())
		}
	}
}

func withClaims(ctx context.Context, claims *Claims) context.Context {
	uid := claims.Username
	if uid == "" && claims.UserID != 0 {
		uid = strconv.FormatInt(claims.UserID, 10)
	}
	if uid == "" {
		uid = claims.Subject
	}
	ctx = context.WithValue(ctx, ClaimsKey, claims)
	ctx = context.WithValue(ctx, UserIDKey, uid)
	ctx = context.WithValue(ctx, UserRoleKey, claims.Role)
	return ctx
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(UserRoleKey).(string)
	return role
}

func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(ClaimsKey).(*Claims)
	return c
}
