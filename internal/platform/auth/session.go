package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v3"

	"github.com/pedsclinic/clinicadmin/internal/platform/apiclient"
)

// Claims is the payload the backend puts in its access tokens.
type Claims struct {
	jwt.RegisteredClaims
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Status   string `json:"status"`
}

// ParseClaims decodes a token without verifying its signature. The backend
// is the only party that verifies tokens.
func ParseClaims(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return claims, nil
}

func expired(c *Claims, now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Time.Before(now)
}

// Caller is the part of apiclient.Client the session needs for the
// unauthenticated login and refresh calls.
type Caller interface {
	DoPublic(ctx context.Context, method, path string, body, out any) error
}

// TokenPair is the body returned by /login/ and /token-refresh/.
type TokenPair struct {
	Access  string `json:"access" yaml:"access"`
	Refresh string `json:"refresh,omitempty" yaml:"refresh,omitempty"`
}

// Session holds the current access and refresh tokens. It implements
// apiclient.TokenSource.
type Session struct {
	mu      sync.RWMutex
	access  string
	refresh string
	claims  *Claims
	now     func() time.Time
}

// NewSession seeds a session from stored tokens. A malformed or expired
// access token is dropped together with its refresh token.
func NewSession(access, refresh string) *Session {
	s := &Session{now: time.Now}
	s.set(TokenPair{Access: access, Refresh: refresh})
	return s
}

func (s *Session) set(p TokenPair) {
	s.access, s.refresh, s.claims = "", "", nil
	if p.Access == "" {
		s.refresh = p.Refresh
		return
	}
	claims, err := ParseClaims(p.Access)
	if err != nil || expired(claims, s.now()) {
		return
	}
	s.access, s.refresh, s.claims = p.Access, p.Refresh, claims
}

// Token returns the access token, or apiclient.ErrMissingToken when there is
// none or it has expired since it was stored.
func (s *Session) Token(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.access == "" || expired(s.claims, s.now()) {
		return "", apiclient.ErrMissingToken
	}
	return s.access, nil
}

func (s *Session) Authenticated() bool {
	_, err := s.Token(context.Background())
	return err == nil
}

// User returns the decoded claims of the current access token, or nil.
func (s *Session) User() *Claims {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.claims == nil {
		return nil
	}
	c := *s.claims
	return &c
}

func (s *Session) Tokens() TokenPair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return TokenPair{Access: s.access, Refresh: s.refresh}
}

// Login exchanges credentials for a token pair.
func (s *Session) Login(ctx context.Context, c Caller, email, password string) (*Claims, error) {
	if email == "" {
		return nil, &apiclient.MissingArgumentError{Name: "email"}
	}
	if password == "" {
		return nil, &apiclient.MissingArgumentError{Name: "password"}
	}
	var pair TokenPair
	body := map[string]string{"email": email, "password": password}
	if err := c.DoPublic(ctx, http.MethodPost, "login", body, &pair); err != nil {
		return nil, err
	}
	return s.accept(pair)
}

// Refresh trades the refresh token for a new access token. The backend
// rotates refresh tokens, so a returned refresh token replaces the old one.
func (s *Session) Refresh(ctx context.Context, c Caller) (*Claims, error) {
	s.mu.RLock()
	refresh := s.refresh
	s.mu.RUnlock()
	if refresh == "" {
		return nil, &apiclient.MissingArgumentError{Name: "refresh token"}
	}
	var pair TokenPair
	if err := c.DoPublic(ctx, http.MethodPost, "token-refresh", map[string]string{"refresh": refresh}, &pair); err != nil {
		return nil, err
	}
	if pair.Refresh == "" {
		pair.Refresh = refresh
	}
	return s.accept(pair)
}

func (s *Session) accept(pair TokenPair) (*Claims, error) {
	if pair.Access == "" {
		return nil, errors.New("backend returned no access token")
	}
	claims, err := ParseClaims(pair.Access)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.access, s.refresh, s.claims = pair.Access, pair.Refresh, claims
	s.mu.Unlock()
	return claims, nil
}

// Logout forgets both tokens.
func (s *Session) Logout() {
	s.mu.Lock()
	s.access, s.refresh, s.claims = "", "", nil
	s.mu.Unlock()
}

// LoadCredentials reads a token pair from a YAML file. A missing file yields
// an empty pair.
func LoadCredentials(path string) (TokenPair, error) {
	var pair TokenPair
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return pair, nil
	}
	if err != nil {
		return pair, fmt.Errorf("read credentials: %w", err)
	}
	if err := yaml.Unmarshal(data, &pair); err != nil {
		return pair, fmt.Errorf("parse credentials %s: %w", path, err)
	}
	return pair, nil
}

// SaveCredentials writes the pair with owner-only permissions.
func SaveCredentials(path string, pair TokenPair) error {
	data, err := yaml.Marshal(pair)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}
