package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"olament/pkg/api"
)

var (
	// ErrNotAuthenticated means there is no active session.
	ErrNotAuthenticated = errors.New("session: not authenticated")

	// ErrBootstrapFailed means the profile fetch that validates a restored
	// token failed or timed out. The credential is cleared; the caller
	// offers a retry or a fresh login, never a fabricated offline session.
	ErrBootstrapFailed = errors.New("session: profile bootstrap failed")
)

// User is the authenticated participant as the session sees it.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Avatar string `json:"avatar,omitempty"`
}

// Session owns the bearer token. It is the single writer: login, logout and
// refresh all mutate the credential under one lock, so a logout can never
// interleave with a refresh. Everything else reads through the TokenSource
// interface.
type Session struct {
	api              *api.Client
	store            *TokenStore
	log              *zap.SugaredLogger
	bootstrapTimeout time.Duration

	mu    sync.RWMutex
	token string
	user  *User
}

type Option func(*Session)

// WithLogger injects a logger; the default is a nop.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Session) { s.log = log }
}

// WithBootstrapTimeout bounds the profile fetch on Restore.
func WithBootstrapTimeout(d time.Duration) Option {
	return func(s *Session) { s.bootstrapTimeout = d }
}

// New builds a Session backed by client and store. Callers should register
// s.Invalidate with api.WithUnauthorizedHook and pass s as the client's
// TokenSource.
func New(client *api.Client, store *TokenStore, opts ...Option) *Session {
	s := &Session{
		api:              client,
		store:            store,
		log:              zap.NewNop().Sugar(),
		bootstrapTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Token implements api.TokenSource.
func (s *Session) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// CurrentUser returns the authenticated user, if any.
func (s *Session) CurrentUser() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

// ExpiresAt reports the token's exp claim. The signature is not checked;
// the server owns verification, this is only for proactive refresh.
func (s *Session) ExpiresAt() (time.Time, bool) {
	s.mu.RLock()
	tok := s.token
	s.mu.RUnlock()
	if tok == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Login exchanges credentials for a token and persists it.
func (s *Session) Login(ctx context.Context, email, password string) (User, error) {
	var resp authResponse
	if err := s.api.Post(ctx, "/users/login", credentials{Email: email, Password: password}, &resp); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	s.token = resp.Token
	u := resp.User
	s.user = &u
	s.mu.Unlock()

	if err := s.store.Save(resp.Token); err != nil {
		s.log.Warnw("token persist failed", "error", err)
	}
	return resp.User, nil
}

// Restore loads a persisted token and validates it with a bounded profile
// fetch. A dead or rejected token clears the stored credential and returns
// ErrBootstrapFailed rather than leaving the caller on a loading state.
func (s *Session) Restore(ctx context.Context) (User, error) {
	tok, err := s.store.Load()
	if err != nil || tok == "" {
		return User{}, ErrNotAuthenticated
	}

	s.mu.Lock()
	s.token = tok
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.bootstrapTimeout)
	defer cancel()

	var u User
	if err := s.api.Get(ctx, "/users/profile", nil, &u); err != nil {
		s.Invalidate()
		s.log.Warnw("profile bootstrap failed", "error", err)
		return User{}, errors.Join(ErrBootstrapFailed, err)
	}

	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()
	return u, nil
}

// Refresh exchanges the current token for a fresh one.
func (s *Session) Refresh(ctx context.Context) error {
	if _, ok := s.Token(); !ok {
		return ErrNotAuthenticated
	}
	var resp authResponse
	if err := s.api.Post(ctx, "/users/refresh-token", nil, &resp); err != nil {
		return err
	}

	s.mu.Lock()
	s.token = resp.Token
	if resp.User.ID != "" {
		u := resp.User
		s.user = &u
	}
	s.mu.Unlock()

	if err := s.store.Save(resp.Token); err != nil {
		s.log.Warnw("token persist failed", "error", err)
	}
	return nil
}

// Logout drops the session locally and clears the persisted token. The
// server invalidates on its side when the socket disconnects.
func (s *Session) Logout() {
	s.Invalidate()
}

// Invalidate clears the credential. Wired to the API client's unauthorized
// hook so a 401/403 anywhere logs the session out globally.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.mu.Unlock()

	if err := s.store.Clear(); err != nil {
		s.log.Warnw("token clear failed", "error", err)
	}
}
