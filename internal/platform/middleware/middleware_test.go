package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/pedsclinic/clinicadmin/internal/platform/apiclient"
)

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		rid := c.Get("request_id").(string)
		if rid == "" {
			t.Error("expected request_id to be generated")
		}
		return c.String(http.StatusOK, "ok")
	}

	h := RequestID()(handler)
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PreservesExistingAndForwards(t *testing.T) {
	var backendRID string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backendRID = r.Header.Get(apiclient.RequestIDHeader)
		w.Write([]byte(`[]`))
	}))
	defer backend.Close()
	client := apiclient.New(backend.URL, apiclient.StaticToken("tok"))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		if rid := c.Get("request_id").(string); rid != "my-custom-id" {
			t.Errorf("expected my-custom-id, got %s", rid)
		}
		return client.Do(c.Request().Context(), http.MethodGet, "lab-tests", nil, nil, nil)
	}

	h := RequestID()(handler)
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) != "my-custom-id" {
		t.Errorf("expected my-custom-id in response header, got %s", rec.Header().Get(RequestIDHeader))
	}
	if backendRID != "my-custom-id" {
		t.Errorf("expected request id forwarded to backend, got %q", backendRID)
	}
}

func TestLogger_LogsStatusFromError(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/diagnoses/9", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set("request_id", "req-1")

	h := Logger(logger)(func(c echo.Context) error {
		return &apiclient.ServerError{StatusCode: http.StatusNotFound, Message: "Not found."}
	})
	if err := h(c); err == nil {
		t.Fatal("expected error to be passed through")
	}

	var event map[string]any
	if err := json.Unmarshal(buf.Bytes(), &event); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if event["status"] != float64(http.StatusNotFound) || event["level"] != "warn" || event["request_id"] != "req-1" {
		t.Errorf("unexpected log event %v", event)
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	logger := zerolog.New(os.Stderr).With().Logger()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	h := Recovery(logger)(func(c echo.Context) error {
		panic("test panic")
	})
	err := h(c)

	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", httpErr.Code)
	}
}

func TestRecovery_LogsRequestAndCaller(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/lab/results", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/v1/lab/results")
	c.Set("request_id", "req-9")

	h := Recovery(logger)(func(c echo.Context) error {
		panic(errors.New("nil reference range"))
	})
	if err := h(c); err == nil {
		t.Fatal("expected an error")
	}

	var event map[string]any
	if err := json.Unmarshal(buf.Bytes(), &event); err != nil {
		t.Fatalf("decode log: %v", err)
	}
	if event["request_id"] != "req-9" || event["route"] != "/api/v1/lab/results" || event["error"] != "nil reference range" {
		t.Errorf("unexpected log event %v", event)
	}
}

func TestRecovery_ReraisesAbortHandler(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	defer func() {
		if r := recover(); r != http.ErrAbortHandler {
			t.Errorf("expected http.ErrAbortHandler to propagate, got %v", r)
		}
	}()
	_ = Recovery(zerolog.Nop())(func(c echo.Context) error {
		panic(http.ErrAbortHandler)
	})(c)
}

func TestRecovery_PassesThrough(t *testing.T) {
	logger := zerolog.New(os.Stderr).With().Logger()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	h := Recovery(logger)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestErrorHandler_RendersErrorBody(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
		wantFields map[string]string
	}{
		{
			name:       "backend status",
			err:        &apiclient.ServerError{StatusCode: http.StatusNotFound, Message: "Not found."},
			wantStatus: http.StatusNotFound,
			wantError:  "server error: Not found.",
		},
		{
			name:       "no response",
			err:        fmt.Errorf("%w: connection refused", apiclient.ErrNoResponse),
			wantStatus: http.StatusBadGateway,
			wantError:  "no response from server: connection refused",
		},
		{
			name:       "guard clause",
			err:        HTTPError(&apiclient.MissingArgumentError{Name: "diagnosis ID"}),
			wantStatus: http.StatusBadRequest,
			wantError:  "diagnosis ID is required",
		},
		{
			name:       "field errors",
			err:        HTTPError(apiclient.FieldErrors{"code": "Required"}),
			wantStatus: http.StatusBadRequest,
			wantError:  "validation failed: code: Required",
			wantFields: map[string]string{"code": "Required"},
		},
		{
			name:       "echo error",
			err:        echo.NewHTTPError(http.StatusUnauthorized, "authorization token is missing"),
			wantStatus: http.StatusUnauthorized,
			wantError:  "authorization token is missing",
		},
		{
			name:       "unknown",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/x", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			ErrorHandler(zerolog.Nop())(tt.err, c)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			var body errorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Error != tt.wantError {
				t.Errorf("expected error %q, got %q", tt.wantError, body.Error)
			}
			if len(tt.wantFields) > 0 && body.Fields["code"] != tt.wantFields["code"] {
				t.Errorf("expected fields %v, got %v", tt.wantFields, body.Fields)
			}
			if len(tt.wantFields) == 0 && strings.Contains(rec.Body.String(), "fields") {
				t.Errorf("unexpected fields in %s", rec.Body.String())
			}
		})
	}
}

func TestHTTPError_Nil(t *testing.T) {
	if HTTPError(nil) != nil {
		t.Error("expected nil for nil error")
	}
}
