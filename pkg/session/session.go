// Package session owns the authentication state of one user: the token pair
// and the cached profile, persisted to an injected Storage.
//
// A Session satisfies client.TokenStore, so a client built with it attaches
// the access token to every request and refreshes it in place.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tvinspection/tvinspect/pkg/client"
	"github.com/tvinspection/tvinspect/pkg/constants"
)

// API is the part of the backend client a session needs.
type API interface {
	Login(ctx context.Context, username, password string) (client.AuthResponse, error)
	Register(ctx context.Context, req client.RegisterRequest) (client.AuthResponse, error)
	Profile(ctx context.Context) (*client.User, error)
	UpdateProfile(ctx context.Context, fields map[string]any) (*client.User, error)
}

var _ client.TokenStore = (*Session)(nil)

type Session struct {
	mu      sync.RWMutex
	storage Storage
	logger  zerolog.Logger
	now     func() time.Time

	access  string
	refresh string
	user    *client.User
}

type Option func(*Session)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// New returns an empty session over storage. Call Init to restore a
// previous login.
func New(storage Storage, opts ...Option) *Session {
	s := &Session{
		storage: storage,
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init hydrates the session from storage. Tokens whose exp has passed are
// dropped; when both are gone the stored session is cleared.
func (s *Session) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	access, _, err := s.storage.Get(constants.KeyAccessToken)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	refresh, _, err := s.storage.Get(constants.KeyRefreshToken)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	rawUser, hasUser, err := s.storage.Get(constants.KeyUser)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	now := s.now()
	if s.expired(access, now) {
		s.logger.Debug().Msg("stored access token expired")
		access = ""
		if err := s.storage.Delete(constants.KeyAccessToken); err != nil {
			return err
		}
	}
	if s.expired(refresh, now) {
		s.logger.Debug().Msg("stored refresh token expired")
		refresh = ""
		if err := s.storage.Delete(constants.KeyRefreshToken); err != nil {
			return err
		}
	}
	if access == "" && refresh == "" {
		s.access, s.refresh, s.user = "", "", nil
		return s.storage.Delete(constants.KeyAccessToken, constants.KeyRefreshToken, constants.KeyUser)
	}

	s.access, s.refresh, s.user = access, refresh, nil
	if hasUser {
		var u client.User
		if err := json.Unmarshal([]byte(rawUser), &u); err != nil {
			s.logger.Warn().Err(err).Msg("discarding unreadable stored user")
		} else {
			s.user = &u
		}
	}
	return nil
}

func (s *Session) expired(token string, now time.Time) bool {
	if token == "" {
		return false
	}
	exp, ok := tokenExpiry(token)
	return ok && !now.Before(exp)
}

// Login authenticates and stores the returned tokens and user.
func (s *Session) Login(ctx context.Context, api API, username, password string) (client.User, error) {
	resp, err := api.Login(ctx, username, password)
	if err != nil {
		return client.User{}, err
	}
	return s.establish(resp, username)
}

// Register creates the account. Backends that do not issue tokens on
// registration are logged into with the same credentials.
func (s *Session) Register(ctx context.Context, api API, req client.RegisterRequest) (client.User, error) {
	resp, err := api.Register(ctx, req)
	if err != nil {
		return client.User{}, err
	}
	if access, _ := resp.Tokens(); access == "" {
		return s.Login(ctx, api, req.Username, req.Password)
	}
	return s.establish(resp, req.Username)
}

func (s *Session) establish(resp client.AuthResponse, username string) (client.User, error) {
	access, refresh := resp.Tokens()
	if access == "" {
		return client.User{}, fmt.Errorf("login successful but no token received: %w", constants.ErrNoToken)
	}
	user, ok := resp.User()
	if !ok {
		user = client.User{Username: username}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.storage.Set(constants.KeyAccessToken, access)
	if err != nil {
		return client.User{}, fmt.Errorf("failed to store session: %w", err)
	}
	if refresh != "" {
		err = s.storage.Set(constants.KeyRefreshToken, refresh)
	} else {
		err = s.storage.Delete(constants.KeyRefreshToken)
	}
	if err != nil {
		return client.User{}, fmt.Errorf("failed to store session: %w", err)
	}
	if err := s.storeUser(user); err != nil {
		return client.User{}, err
	}
	s.access, s.refresh, s.user = access, refresh, &user
	s.logger.Info().Str("username", user.Username).Msg("logged in")
	return user, nil
}

func (s *Session) storeUser(u client.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if err := s.storage.Set(constants.KeyUser, string(data)); err != nil {
		return fmt.Errorf("failed to store user: %w", err)
	}
	return nil
}

// Logout removes the session from memory and storage.
func (s *Session) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access, s.refresh, s.user = "", "", nil
	if err := s.storage.Delete(constants.KeyAccessToken, constants.KeyRefreshToken, constants.KeyUser); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access != "" || s.refresh != ""
}

// User returns the cached profile.
func (s *Session) User() (client.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return client.User{}, false
	}
	return *s.user, true
}

// LoadProfile fetches the profile and replaces the cached user.
func (s *Session) LoadProfile(ctx context.Context, api API) (client.User, error) {
	u, err := api.Profile(ctx)
	if err != nil {
		return client.User{}, err
	}
	return s.setUser(*u)
}

// UpdateProfile changes profile fields and replaces the cached user.
func (s *Session) UpdateProfile(ctx context.Context, api API, fields map[string]any) (client.User, error) {
	u, err := api.UpdateProfile(ctx, fields)
	if err != nil {
		return client.User{}, err
	}
	return s.setUser(*u)
}

func (s *Session) setUser(u client.User) (client.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storeUser(u); err != nil {
		return client.User{}, err
	}
	s.user = &u
	return u, nil
}

func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access
}

func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh
}

func (s *Session) SetAccessToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storage.Set(constants.KeyAccessToken, token); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}
	s.access = token
	return nil
}

// Clear is called by the client when the refresh token is rejected.
func (s *Session) Clear() error {
	return s.Logout()
}
