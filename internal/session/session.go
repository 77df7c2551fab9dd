package session

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gci-tools/reportes-console/internal/credstore"
	"github.com/gci-tools/reportes-console/internal/gateway"
	"github.com/gci-tools/reportes-console/internal/pkg/logger"
	"github.com/gci-tools/reportes-console/internal/platform/apierr"
)

// Identity is what the server says about the current credential. It gates
// display and client-side navigation only; the server re-checks privilege on
// every call.
type Identity struct {
	Username string   `json:"username"`
	Active   int      `json:"activo"`
	Roles    []string `json:"roles"`
}

func (id *Identity) IsAdmin() bool {
	if id == nil {
		return false
	}
	if id.Username == "admin" {
		return true
	}
	for _, r := range id.Roles {
		if strings.EqualFold(r, "ADMIN") {
			return true
		}
	}
	return false
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresInMinutes int    `json:"expires_in_minutes"`
}

type passwordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Session owns the identity lifecycle: login stores the credential and derives
// the identity, logout and any gateway-detected 401 destroy both.
type Session struct {
	log   *logger.Logger
	gw    *gateway.Gateway
	creds *credstore.Store

	mu        sync.Mutex
	identity  *Identity
	onInvalid gateway.SessionInvalidatedFunc
}

func New(log *logger.Logger, gw *gateway.Gateway, creds *credstore.Store) (*Session, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if gw == nil || creds == nil {
		return nil, fmt.Errorf("gateway and credential store required")
	}
	s := &Session{log: log.With("component", "Session"), gw: gw, creds: creds}
	gw.OnSessionInvalidated(func(detail string) {
		s.mu.Lock()
		s.identity = nil
		fn := s.onInvalid
		s.mu.Unlock()
		s.log.Debug("identity dropped after session invalidation", "detail", detail)
		if fn != nil {
			fn(detail)
		}
	})
	return s, nil
}

// OnInvalidated registers a hook fired after a server-side 401 has destroyed
// the session, so the presentation layer can fall back to the login view.
func (s *Session) OnInvalidated(fn gateway.SessionInvalidatedFunc) {
	s.mu.Lock()
	s.onInvalid = fn
	s.mu.Unlock()
}

// Identity returns the cached identity, nil when unauthenticated.
func (s *Session) Identity() *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Login exchanges credentials for a bearer token, persists it, and derives the
// identity from /auth/me.
func (s *Session) Login(ctx context.Context, username, password string) (*Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apierr.Validation("username and password are required")
	}
	out, err := gateway.JSON[loginResponse](ctx, s.gw, http.MethodPost, "/auth/login", loginRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return nil, apierr.Remote(0, "login response did not include a token")
	}
	if err := s.creds.SetToken(out.AccessToken); err != nil {
		return nil, err
	}
	id, err := s.fetchIdentity(ctx)
	if err != nil {
		return nil, err
	}
	s.log.Info("logged in", "username", id.Username, "roles", id.Roles)
	return id, nil
}

// Bootstrap re-derives the identity from a previously stored credential.
// Absent credential means unauthenticated; no network call is made.
func (s *Session) Bootstrap(ctx context.Context) (*Identity, error) {
	if _, ok := s.creds.Token(); !ok {
		return nil, nil
	}
	return s.fetchIdentity(ctx)
}

func (s *Session) fetchIdentity(ctx context.Context) (*Identity, error) {
	id, err := gateway.JSON[Identity](ctx, s.gw, http.MethodGet, "/auth/me", nil)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()
	return id, nil
}

// ChangePassword validates locally before any network I/O: the new password
// must be at least 8 characters and differ from the current one.
func (s *Session) ChangePassword(ctx context.Context, current, next string) error {
	if current == "" || next == "" {
		return apierr.Validation("both the current and the new password are required")
	}
	if len(next) < 8 {
		return apierr.Validation("the new password must be at least 8 characters")
	}
	if current == next {
		return apierr.Validation("the new password must be different")
	}
	_, _, err := s.gw.Call(ctx, http.MethodPatch, "/auth/change-password", passwordChangeRequest{
		CurrentPassword: current,
		NewPassword:     next,
	})
	return err
}

// Logout clears the credential and identity locally. The token is stateless
// server-side, so no call is made.
func (s *Session) Logout() error {
	s.mu.Lock()
	s.identity = nil
	s.mu.Unlock()
	return s.creds.Clear()
}

// TokenExpiry decodes the stored token's exp claim without verifying the
// signature. Display only; the server remains the authority on validity.
func (s *Session) TokenExpiry() (time.Time, bool) {
	tok, ok := s.creds.Token()
	if !ok {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tok, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
