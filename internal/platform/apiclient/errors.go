package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Guard-clause errors are returned before any request is attempted.
var (
	ErrMissingToken = errors.New("authorization token is missing")
	ErrNoResponse   = errors.New("no response from server")
)

// MissingArgumentError reports a required argument (usually an id) that was
// empty at the call site.
type MissingArgumentError struct {
	Name string
}

func (e *MissingArgumentError) Error() string {
	return e.Name + " is required"
}

// ServerError is returned for any response with status >= 400.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return "server error: " + e.Message
}

// RequestError wraps failures that happen while building a request.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return "request error: " + e.Err.Error()
}

func (e *RequestError) Unwrap() error { return e.Err }

// StatusCode returns the backend status carried by err, or 0 when err did
// not come from an HTTP response.
func StatusCode(err error) int {
	var se *ServerError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// HTTPStatus maps err to the status a console handler should answer with:
// the backend's own status for a ServerError, 502 when the backend never
// answered, 401 for a missing token and 400 for guard clauses.
func HTTPStatus(err error) int {
	var (
		se  *ServerError
		mae *MissingArgumentError
		re  *RequestError
		fe  FieldErrors
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &se):
		return se.StatusCode
	case errors.Is(err, ErrNoResponse):
		return http.StatusBadGateway
	case errors.Is(err, ErrMissingToken):
		return http.StatusUnauthorized
	case errors.As(err, &mae), errors.As(err, &re), errors.As(err, &fe):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// errorMessage unwraps a backend error body: detail, then message, then the
// first non_field_errors entry, then the raw body.
func errorMessage(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		if s, ok := payload["detail"].(string); ok && s != "" {
			return s
		}
		if s, ok := payload["message"].(string); ok && s != "" {
			return s
		}
		if list, ok := payload["non_field_errors"].([]any); ok && len(list) > 0 {
			return fmt.Sprint(list[0])
		}
		if compact, err := json.Marshal(payload); err == nil {
			return string(compact)
		}
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "empty response body"
	}
	return text
}

// FieldErrors collects form-level validation failures keyed by field name.
// Like the other guard errors it is returned before any request is sent.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// RequireFields reports every field of payload that is absent, null or an
// empty string.
func RequireFields(payload map[string]any, fields ...string) error {
	errs := FieldErrors{}
	for _, f := range fields {
		v, ok := payload[f]
		if !ok || v == nil {
			errs[f] = "Required"
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			errs[f] = "Required"
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
