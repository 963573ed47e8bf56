package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/pedsclinic/clinicadmin/internal/platform/apiclient"
	"github.com/pedsclinic/clinicadmin/internal/platform/audit"
	"github.com/pedsclinic/clinicadmin/internal/platform/auth"
)

const apiPrefix = "/api/v1/"

// actionSegments are trailing path segments that name an operation rather
// than a resource, e.g. /lab/tests/bulk-upload.
var actionSegments = map[string]bool{
	"bulk-upload": true,
	"login":       true,
	"logout":      true,
	"refresh":     true,
	"search":      true,
}

// Audit journals every mutating /api/v1 call after it has run. The user
// comes from the token claims Bearer put on the context. A failing store
// is logged and never fails the request.
func Audit(logger zerolog.Logger, store audit.Store) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !isAuditable(req.Method, req.URL.Path) {
				return next(c)
			}

			err := next(c)

			ctx := req.Context()
			entry := audit.Entry{
				UserID: auth.UserIDFromContext(ctx),
				Role:   auth.RoleFromContext(ctx),
				Source: audit.SourceConsole,
				Method: req.Method,
			}
			entry.Resource, entry.ResourceID, entry.Action = splitResourcePath(req.URL.Path)
			if entry.Action == "" {
				entry.Action = httpMethodToAction(req.Method)
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}
			entry.StatusCode = responseStatus(c, err)
			if err != nil {
				entry.Error = errorText(err)
			}
			audit.Stamp(&entry)

			if store != nil {
				if recErr := store.Record(ctx, entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			evt := logger.Info()
			if entry.Outcome == audit.OutcomeFailure {
				evt = logger.Warn()
			}
			evt.
				Str("type", "console_audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("role", entry.Role).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Int("status", entry.StatusCode).
				Str("outcome", string(entry.Outcome)).
				Msg("console_action")

			return err
		}
	}
}

func isAuditable(method, path string) bool {
	if !strings.HasPrefix(path, apiPrefix) {
		return false
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func httpMethodToAction(method string) string {
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

// splitResourcePath breaks an /api/v1 path into resource, id and action.
//
//   - /api/v1/lab/tests                 -> lab/tests
//   - /api/v1/diagnoses/7/mark_resolved -> diagnoses, 7, mark_resolved
//   - /api/v1/lab/ranges/bulk-upload    -> lab/ranges, "", bulk-upload
//   - /api/v1/schedules/admission       -> schedules/admission
func splitResourcePath(path string) (resource, id, action string) {
	rest := strings.Trim(strings.TrimPrefix(path, apiPrefix), "/")
	if rest == "" {
		return "unknown", "", ""
	}
	segments := strings.Split(rest, "/")
	for i, seg := range segments {
		if _, err := strconv.ParseInt(seg, 10, 64); err == nil && i > 0 {
			return strings.Join(segments[:i], "/"), seg, strings.Join(segments[i+1:], "/")
		}
	}
	if last := segments[len(segments)-1]; len(segments) > 1 && actionSegments[last] {
		return strings.Join(segments[:len(segments)-1], "/"), "", last
	}
	return rest, "", ""
}

// responseStatus is the status the client will see. Errors have not been
// written yet when Audit runs, so it is derived from the error itself.
func responseStatus(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return apiclient.HTTPStatus(err)
}

func errorText(err error) string {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return fmt.Sprint(he.Message)
	}
	return err.Error()
}
