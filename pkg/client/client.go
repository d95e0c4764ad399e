// Package client is the HTTP client of the inspection backend REST API.
//
// [Client] attaches the bearer access token held by its [TokenStore] to
// every authenticated request. When a request comes back 401 and a refresh
// token is available, the client exchanges it for a new access token once
// and replays the request; if the exchange fails the store is cleared and
// the caller gets a "Session expired" [APIError].
//
// Every non-2xx response and every transport failure is returned as an
// *[APIError] carrying the user-facing message and unwrapping to one of the
// sentinels in [github.com/tvinspection/tvinspect/pkg/constants], so callers
// can branch with errors.Is:
//
//	forms, err := c.ListForms(ctx, client.ListParams{})
//	if errors.Is(err, constants.ErrSessionExpired) {
//		// ask for credentials again
//	}
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tvinspection/tvinspect/pkg/constants"
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultDownloadTimeout = 60 * time.Second
	DefaultRefreshTimeout  = 10 * time.Second
)

// TokenStore holds the tokens of the current session.
type TokenStore interface {
	AccessToken() string
	RefreshToken() string
	SetAccessToken(token string) error
	// Clear drops every token and the cached user.
	Clear() error
}

// Client is safe for concurrent use.
type Client struct {
	baseURL         string
	httpClient      *http.Client
	tokens          TokenStore
	logger          zerolog.Logger
	timeout         time.Duration
	downloadTimeout time.Duration
	refreshTimeout  time.Duration

	tokensMu  sync.RWMutex
	refreshMu sync.Mutex
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithTokenStore(ts TokenStore) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithTimeout sets the per-request timeout of ordinary calls.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithDownloadTimeout sets the per-request timeout of PDF and Excel
// downloads.
func WithDownloadTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.downloadTimeout = d
	}
}

// New creates a client for the API rooted at baseURL, e.g.
// "http://127.0.0.1:8000/api".
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, constants.ErrNoBaseURL
	}
	c := &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		httpClient:      &http.Client{},
		logger:          zerolog.Nop(),
		timeout:         DefaultTimeout,
		downloadTimeout: DefaultDownloadTimeout,
		refreshTimeout:  DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetTokenStore replaces the token store, e.g. after a session is created
// for a client built earlier.
func (c *Client) SetTokenStore(ts TokenStore) {
	c.tokensMu.Lock()
	defer c.tokensMu.Unlock()
	c.tokens = ts
}

func (c *Client) tokenStore() TokenStore {
	c.tokensMu.RLock()
	defer c.tokensMu.RUnlock()
	return c.tokens
}

type request struct {
	method  string
	path    string
	query   url.Values
	body    any
	timeout time.Duration
	// anonymous requests carry no bearer token and are never retried
	anonymous bool
}

type response struct {
	status int
	header http.Header
	body   []byte
	// token is the access token the request was sent with
	token string
}

// send performs r, refreshing the access token and replaying once on 401.
func (c *Client) send(ctx context.Context, r request) (*response, error) {
	resp, err := c.attempt(ctx, r)
	if err != nil {
		return nil, err
	}

	ts := c.tokenStore()
	if resp.status == http.StatusUnauthorized && !r.anonymous && ts != nil && ts.RefreshToken() != "" {
		if err := c.refresh(ctx, ts, resp.token); err != nil {
			return nil, err
		}
		if resp, err = c.attempt(ctx, r); err != nil {
			return nil, err
		}
	}

	if resp.status >= http.StatusBadRequest {
		return nil, classifyStatus(resp.status, resp.body)
	}
	return resp, nil
}

// attempt performs a single HTTP exchange and reads the whole body.
func (c *Client) attempt(ctx context.Context, r request) (*response, error) {
	timeout := r.timeout
	if timeout == 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if r.body != nil {
		jsonBody, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	out := &response{}
	if ts := c.tokenStore(); ts != nil && !r.anonymous {
		if out.token = ts.AccessToken(); out.token != "" {
			req.Header.Set("Authorization", "Bearer "+out.token)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", r.method).Str("path", r.path).Msg("api request failed")
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	out.status = resp.StatusCode
	out.header = resp.Header
	if out.body, err = io.ReadAll(resp.Body); err != nil {
		return nil, classifyTransport(err)
	}
	c.logger.Debug().
		Str("method", r.method).
		Str("path", r.path).
		Int("status", out.status).
		Dur("elapsed", time.Since(start)).
		Msg("api request")
	return out, nil
}

// refresh exchanges the refresh token for a new access token. stale is the
// access token that was rejected; if another goroutine has already replaced
// it, the new token is used as is.
func (c *Client) refresh(ctx context.Context, ts TokenStore, stale string) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if current := ts.AccessToken(); current != "" && current != stale {
		return nil
	}

	var out struct {
		Access string `json:"access"`
	}
	resp, err := c.attempt(ctx, request{
		method:    http.MethodPost,
		path:      constants.PathTokenRefresh,
		body:      map[string]string{"refresh": ts.RefreshToken()},
		timeout:   c.refreshTimeout,
		anonymous: true,
	})
	if err == nil && resp.status < http.StatusBadRequest {
		err = json.Unmarshal(resp.body, &out)
	}
	if err == nil && out.Access != "" {
		c.logger.Debug().Msg("access token refreshed")
		return ts.SetAccessToken(out.Access)
	}

	c.logger.Warn().Err(err).Msg("token refresh failed, clearing session")
	if clearErr := ts.Clear(); clearErr != nil {
		c.logger.Error().Err(clearErr).Msg("failed to clear session")
	}
	return &APIError{
		Status:  http.StatusUnauthorized,
		Message: "Session expired. Please login again.",
		kind:    constants.ErrSessionExpired,
	}
}

// decodeResponse decodes the JSON body into target.
func decodeResponse(resp *response, target any) error {
	if target == nil || resp.status == http.StatusNoContent || len(resp.body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) call(ctx context.Context, r request, target any) error {
	resp, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	return decodeResponse(resp, target)
}
