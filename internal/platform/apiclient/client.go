// Package apiclient is the typed caller for the clinic backend REST API. It
// owns request construction, bearer authentication and the error taxonomy;
// it never retries and never caches.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RequestIDHeader is forwarded to the backend on every call.
const RequestIDHeader = "X-Request-ID"

// TokenSource yields the bearer token for the next request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource backed by a fixed string.
type StaticToken string

func (t StaticToken) Token(_ context.Context) (string, error) {
	if t == "" {
		return "", ErrMissingToken
	}
	return string(t), nil
}

type ctxTokenKey struct{}

// WithToken returns a context whose requests use token instead of the
// client's TokenSource. The console uses it to forward a caller's own bearer.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ctxTokenKey{}, token)
}

type ctxRequestIDKey struct{}

// WithRequestID makes outgoing calls reuse an inbound request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey{}, id)
}

type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	logger  zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		tokens:  tokens,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) token(ctx context.Context) (string, error) {
	if t, ok := ctx.Value(ctxTokenKey{}).(string); ok && t != "" {
		return t, nil
	}
	if c.tokens == nil {
		return "", ErrMissingToken
	}
	t, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	if t == "" {
		return "", ErrMissingToken
	}
	return t, nil
}

// URL joins path onto the base URL and guarantees the trailing slash the
// backend routes require.
func (c *Client) URL(path string, query url.Values) string {
	p := "/" + strings.Trim(path, "/") + "/"
	u := c.baseURL + p
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// Do sends one JSON request. body may be nil; out may be nil when the
// response body is not needed.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &RequestError{Err: fmt.Errorf("marshal body: %w", err)}
		}
		reader = bytes.NewReader(b)
	}
	return c.send(ctx, method, path, query, reader, "application/json", true, out)
}

// DoPublic is Do without the bearer guard, for the login and token refresh
// endpoints.
func (c *Client) DoPublic(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &RequestError{Err: fmt.Errorf("marshal body: %w", err)}
		}
		reader = bytes.NewReader(b)
	}
	return c.send(ctx, method, path, nil, reader, "application/json", false, out)
}

// Upload sends a multipart/form-data POST with one file part and optional
// string fields.
func (c *Client) Upload(ctx context.Context, path, field, filename string, file io.Reader, fields map[string]string, out any) error {
	if file == nil {
		return &MissingArgumentError{Name: "file"}
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return &RequestError{Err: fmt.Errorf("write field %s: %w", k, err)}
		}
	}
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		return &RequestError{Err: fmt.Errorf("create form file: %w", err)}
	}
	if _, err := io.Copy(part, file); err != nil {
		return &RequestError{Err: fmt.Errorf("copy file: %w", err)}
	}
	if err := mw.Close(); err != nil {
		return &RequestError{Err: fmt.Errorf("close multipart writer: %w", err)}
	}
	return c.send(ctx, http.MethodPost, path, nil, &buf, mw.FormDataContentType(), true, out)
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, authenticated bool, out any) error {
	var token string
	if authenticated {
		t, err := c.token(ctx)
		if err != nil {
			return err
		}
		token = t
	}

	endpoint := c.URL(path, query)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return &RequestError{Err: err}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	rid, _ := ctx.Value(ctxRequestIDKey{}).(string)
	if rid == "" {
		rid = uuid.NewString()
	}
	req.Header.Set(RequestIDHeader, rid)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error().Err(err).
			Str("request_id", rid).
			Str("method", method).
			Str("path", req.URL.Path).
			Msg("backend unreachable")
		return fmt.Errorf("%w: %w", ErrNoResponse, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %w", ErrNoResponse, err)
	}

	c.logger.Debug().
		Str("request_id", rid).
		Str("method", method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("backend call")

	if resp.StatusCode >= http.StatusBadRequest {
		se := &ServerError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
		c.logger.Error().
			Str("request_id", rid).
			Str("method", method).
			Str("path", req.URL.Path).
			Int("status", resp.StatusCode).
			Msg(se.Message)
		return se
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
