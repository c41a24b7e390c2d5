package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/beanphv/QBR-Dashboard/internal/platform/auth"
)

// Audit emits one "admin_audit" log event for every state-changing API call
// (uploads, upload rejection, exports, user changes) after the handler runs.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !isAuditable(req.Method, req.URL.Path) {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			rid, _ := c.Get("request_id").(string)
			ctx := req.Context()

			evt := logger.Info()
			if status >= http.StatusBadRequest {
				evt = logger.Warn()
			}
			evt.
				Str("type", "admin_audit").
				Str("request_id", rid).
				Str("user_id", auth.UserIDFromContext(ctx)).
				Strs("user_roles", auth.RolesFromContext(ctx)).
				Str("action", actionFor(req.Method)).
				Str("resource", resourceOf(req.URL.Path)).
				Str("path", req.URL.Path).
				Int("status", status).
				Str("remote_ip", c.RealIP()).
				Msg("admin action")

			return err
		}
	}
}

func isAuditable(method, path string) bool {
	if !strings.HasPrefix(path, "/api/v1/") {
		return false
	}
	return method != http.MethodGet && method != http.MethodHead && method != http.MethodOptions
}

func actionFor(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// resourceOf returns the first segment after /api/v1/.
func resourceOf(path string) string {
	seg, _, _ := strings.Cut(strings.TrimPrefix(path, "/api/v1/"), "/")
	if seg == "" {
		return "unknown"
	}
	return seg
}
