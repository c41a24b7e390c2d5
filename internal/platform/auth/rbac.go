package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	RoleAdmin   = "admin"
	RoleAnalyst = "analyst"
)

// RoleResolver looks up the stored role of a dashboard user. known is false
// when the subject has no user record.
type RoleResolver interface {
	RolesForUser(ctx context.Context, userID string) (roles []string, known bool, err error)
}

// LoadRoles replaces token-claimed roles with the roles stored for the
// caller. Callers without a user record keep their claimed roles.
func LoadRoles(resolver RoleResolver, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			userID := UserIDFromContext(ctx)
			if userID == "" {
				return next(c)
			}

			roles, known, err := resolver.RolesForUser(ctx, userID)
			if err != nil {
				logger.Error().Err(err).Str("user_id", userID).Msg("role lookup failed")
				return echo.NewHTTPError(http.StatusInternalServerError, "role lookup failed")
			}
			if known {
				ctx = context.WithValue(ctx, UserRolesKey, roles)
				c.SetRequest(c.Request().WithContext(ctx))
			}
			return next(c)
		}
	}
}

// HasRole reports whether ctx carries role. Admins hold every role.
func HasRole(ctx context.Context, role string) bool {
	for _, has := range RolesFromContext(ctx) {
		if has == role || has == RoleAdmin {
			return true
		}
	}
	return false
}

// RequireRole rejects unauthenticated callers with 401 and callers holding
// none of roles with 403.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if UserIDFromContext(ctx) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
			}
			for _, required := range roles {
				if HasRole(ctx, required) {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
