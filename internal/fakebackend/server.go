// Package fakebackend provides an in-process fake of the inspection
// backend's REST API for testing purposes. It implements JWT-style
// authentication with refresh, per-user forms, and the PDF and Excel
// download endpoints.
//
// To flexibly inject failures, you can configure stub responses
// that match specific routes, along with failure configurations
// that specify how it fails (e.g., delays, error statuses, dropped
// connections).
package fakebackend

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/tvinspection/tvinspect/pkg/schema"
)

const apiPrefix = "/api"

type tokenKind string

const (
	accessToken  tokenKind = "access"
	refreshToken tokenKind = "refresh"
)

// User is an account of the fake backend.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`

	password string
}

// Token is an issued access or refresh token.
type Token struct {
	Value     string
	Kind      tokenKind
	Username  string
	ExpiresAt time.Time
}

// Server is a fake inspection backend with support for stub responses and
// failure injection.
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	router     *mux.Router

	mu             sync.RWMutex
	stubResponses  []StubResponse
	globalFailures []FailureConfig
	users          map[string]*User
	tokens         map[string]*Token
	forms          map[int64]schema.Record
	owners         map[int64]string
	nextUserID     int64
	nextFormID     int64
	signingKey     []byte

	// AccessTTL and RefreshTTL are the lifetimes of issued tokens.
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Paginate wraps form listings in {count, next, previous, results}.
	Paginate bool

	// TokensOnRegister makes registration return a token pair, as some
	// deployments do.
	TokensOnRegister bool

	// Now is the clock used for token expiry and timestamps.
	Now func() time.Time

	Logger zerolog.Logger
}

// NewServer creates a new fake backend.
// Use "127.0.0.1:0" to bind to a random available port.
func NewServer(addr string) *Server {
	s := &Server{
		addr:       addr,
		users:      make(map[string]*User),
		tokens:     make(map[string]*Token),
		forms:      make(map[int64]schema.Record),
		owners:     make(map[int64]string),
		signingKey: make([]byte, 32),
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
		Now:        time.Now,
		Logger:     zerolog.Nop(),
	}
	_, _ = rand.Read(s.signingKey)
	s.router = mux.NewRouter()
	s.routes(s.router.PathPrefix(apiPrefix).Subrouter())
	return s
}

// Handler returns the HTTP handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.serveHTTP)
}

// AddStubResponse adds a stub response configuration to the server.
// Stub responses are matched in the order they were added.
func (s *Server) AddStubResponse(stub StubResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stubResponses = append(s.stubResponses, stub)
}

// SetGlobalFailures sets failure configurations that apply to all requests.
// These are checked before stub-specific failures.
func (s *Server) SetGlobalFailures(failures []FailureConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globalFailures = failures
}

// AddUser registers an account directly.
func (s *Server) AddUser(username, password string) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(User{Username: username, password: password})
}

func (s *Server) addUserLocked(u User) *User {
	s.nextUserID++
	u.ID = s.nextUserID
	s.users[u.Username] = &u
	return &u
}

// GenerateTokenWithExpiration issues a token for username that expires
// after duration. Negative durations give already expired tokens.
func (s *Server) GenerateTokenWithExpiration(username string, kind tokenKind, duration time.Duration) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(username, kind, duration)
}

// AccessToken issues an access token for username.
func (s *Server) AccessToken(username string, duration time.Duration) string {
	return s.GenerateTokenWithExpiration(username, accessToken, duration)
}

// RefreshToken issues a refresh token for username.
func (s *Server) RefreshToken(username string, duration time.Duration) string {
	return s.GenerateTokenWithExpiration(username, refreshToken, duration)
}

// issueLocked signs an HS256 JWT carrying exp, jti and the token type.
// The server keeps its own expiry so tests can expire tokens early.
func (s *Server) issueLocked(username string, kind tokenKind, duration time.Duration) string {
	exp := s.Now().Add(duration)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"token_type": string(kind),
		"exp":        exp.Unix(),
		"jti":        uuid.NewString(),
		"username":   username,
	})
	value, err := token.SignedString(s.signingKey)
	if err != nil {
		s.Logger.Error().Err(err).Msg("failed to sign token")
		return ""
	}
	s.tokens[value] = &Token{Value: value, Kind: kind, Username: username, ExpiresAt: exp}
	return value
}

// ExpireTokens expires every issued token of kind.
func (s *Server) ExpireTokens(kind tokenKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	past := s.Now().Add(-time.Second)
	for _, t := range s.tokens {
		if t.Kind == kind {
			t.ExpiresAt = past
		}
	}
}

// ExpireAccessTokens forces the next authenticated call through refresh.
func (s *Server) ExpireAccessTokens() {
	s.ExpireTokens(accessToken)
}

// RevokeRefreshTokens makes every refresh attempt fail.
func (s *Server) RevokeRefreshTokens() {
	s.ExpireTokens(refreshToken)
}

// SeedForm stores rec as created by owner and returns its id.
func (s *Server) SeedForm(owner string, rec schema.Record) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(owner, rec)
}

// Form returns a copy of a stored form.
func (s *Server) Form(id int64) (schema.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.forms[id]
	if !ok {
		return nil, false
	}
	return schema.CloneRecord(rec), true
}

// FormCount returns the number of stored forms.
func (s *Server) FormCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.forms)
}

// Start starts the server and begins accepting connections.
// Returns an error if the server cannot bind to the specified address.
func (s *Server) Start() error {
	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.httpServer = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Error().Err(err).Msg("server error")
		}
	}()
	return nil
}

// Stop shuts down the server and closes all connections
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// Address returns the actual address the server is listening on.
// This is useful when using "127.0.0.1:0" to get the assigned port.
func (s *Server) Address() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// URL returns the API base URL of a started server.
func (s *Server) URL() string {
	return "http://" + s.Address() + apiPrefix
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	globalFailures := s.globalFailures
	s.mu.RUnlock()

	for _, failure := range globalFailures {
		if shouldTriggerFailure(failure.Probability) {
			if s.applyFailure(w, r, failure) {
				return
			}
		}
	}

	path := strings.TrimPrefix(r.URL.Path, apiPrefix)
	s.mu.RLock()
	var matchedStub *StubResponse
	for i := range s.stubResponses {
		if s.stubResponses[i].Matcher.matches(r, path) {
			stub := s.stubResponses[i]
			matchedStub = &stub
			break
		}
	}
	s.mu.RUnlock()

	if matchedStub != nil {
		for _, failure := range matchedStub.Failures {
			if shouldTriggerFailure(failure.Probability) {
				if s.applyFailure(w, r, failure) {
					return
				}
			}
		}
		if matchedStub.answers() {
			status := matchedStub.Status
			if status == 0 {
				status = http.StatusOK
			}
			writeJSON(w, status, matchedStub.Body)
			return
		}
	}

	s.Logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("fake backend request")
	s.router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func detail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"detail": msg})
}
