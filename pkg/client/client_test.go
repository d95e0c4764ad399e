package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/tvinspection/tvinspect/pkg/constants"
)

type RoundTripFunc func(req *http.Request) *http.Response

func (f RoundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req), nil
}

// NewTestClient returns *http.Client with Transport replaced to avoid making real calls
func NewTestClient(fn RoundTripFunc) *http.Client {
	return &http.Client{
		Transport: fn,
	}
}

type memTokens struct {
	mu      sync.Mutex
	access  string
	refresh string
	cleared bool
}

func (m *memTokens) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.access
}

func (m *memTokens) RefreshToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refresh
}

func (m *memTokens) SetAccessToken(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access = token
	return nil
}

func (m *memTokens) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access, m.refresh, m.cleared = "", "", true
	return nil
}

func jsonResponse(status int, body any) *http.Response {
	data, _ := json.Marshal(body)
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(data)),
		// Must be set to non-nil value or it panics
		Header: make(http.Header),
	}
}

type ClientTestSuite struct {
	suite.Suite
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func (s *ClientTestSuite) newClient(fn RoundTripFunc, ts TokenStore) *Client {
	c, err := New("http://backend.test/api/", WithHTTPClient(NewTestClient(fn)), WithTokenStore(ts))
	s.Require().NoError(err)
	return c
}

func (s *ClientTestSuite) TestNewRequiresBaseURL() {
	_, err := New("")
	s.Require().ErrorIs(err, constants.ErrNoBaseURL)
}

func (s *ClientTestSuite) TestBearerAndQuery() {
	c := s.newClient(func(req *http.Request) *http.Response {
		s.Equal("Bearer abc", req.Header.Get("Authorization"))
		s.Equal("/api/forms/", req.URL.Path)
		s.Equal("kbc", req.URL.Query().Get("search"))
		s.False(req.URL.Query().Has("station_type"))
		return jsonResponse(http.StatusOK, []map[string]any{{"id": 1}, {"id": 2}})
	}, &memTokens{access: "abc"})

	page, err := c.ListForms(context.Background(), ListParams{Search: "kbc"})
	s.Require().NoError(err)
	s.Equal(2, page.Count)
	s.Len(page.Results, 2)
}

func (s *ClientTestSuite) TestPaginatedList() {
	c := s.newClient(func(req *http.Request) *http.Response {
		return jsonResponse(http.StatusOK, map[string]any{
			"count":   30,
			"next":    "http://backend.test/api/forms/?page=2",
			"results": []map[string]any{{"id": 1}},
		})
	}, nil)

	page, err := c.ListForms(context.Background(), ListParams{Page: 1})
	s.Require().NoError(err)
	s.Equal(30, page.Count)
	s.Len(page.Results, 1)
	s.NotEmpty(page.Next)
}

func (s *ClientTestSuite) TestLoginIsAnonymous() {
	c := s.newClient(func(req *http.Request) *http.Response {
		s.Empty(req.Header.Get("Authorization"))
		return jsonResponse(http.StatusUnauthorized, map[string]any{"error": "Invalid credentials"})
	}, &memTokens{access: "old", refresh: "r"})

	_, err := c.Login(context.Background(), "jane", "wrong")
	s.Require().ErrorIs(err, constants.ErrUnauthorized)
	s.Equal("Authentication required. Please login again.", Message(err))
}

func (s *ClientTestSuite) TestDownloadFilename() {
	c := s.newClient(func(req *http.Request) *http.Response {
		s.Equal("/api/forms/7/download-excel/", req.URL.Path)
		resp := &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader([]byte("xlsx-bytes"))),
			Header:     make(http.Header),
		}
		resp.Header.Set("Content-Disposition", `attachment; filename="KBC_Limuru.xlsx"`)
		return resp
	}, nil)

	d, err := c.DownloadExcel(context.Background(), "7")
	s.Require().NoError(err)
	s.Equal("KBC_Limuru.xlsx", d.Filename)
	s.Equal([]byte("xlsx-bytes"), d.Data)
}

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   string
		kind   error
	}{
		{400, `{"validation_errors": {"tower_height": ["required", "must be numeric"], "altitude": "too low"}}`,
			"Validation errors: altitude: too low; tower_height: required, must be numeric", constants.ErrBadRequest},
		{400, `{"detail": "Bad station"}`, "Bad station", constants.ErrBadRequest},
		{400, ``, "Invalid data provided. Please check your input.", constants.ErrBadRequest},
		{401, `{"detail": "x"}`, "Authentication required. Please login again.", constants.ErrUnauthorized},
		{403, ``, "You do not have permission to perform this action.", constants.ErrForbidden},
		{404, ``, "The requested resource was not found.", constants.ErrNotFound},
		{409, `{"detail": "Duplicate"}`, "Duplicate", constants.ErrConflict},
		{409, ``, "A conflict occurred. The resource may already exist.", constants.ErrConflict},
		{422, ``, "Invalid data format. Please check your input.", constants.ErrUnprocessable},
		{429, ``, "Too many requests. Please wait a moment and try again.", constants.ErrRateLimited},
		{500, `{"detail": "boom"}`, "Server error occurred. Please try again later.", constants.ErrServer},
		{502, ``, "Service temporarily unavailable. Please try again later.", constants.ErrUnavailable},
		{503, ``, "Service maintenance in progress. Please try again later.", constants.ErrUnavailable},
		{504, ``, "Server error (504). Please try again.", constants.ErrServer},
		{418, `{"message": "teapot"}`, "teapot", constants.ErrBadRequest},
	}
	for _, c := range cases {
		err := classifyStatus(c.status, []byte(c.body))
		assert.Equal(t, c.want, err.Message, "status %d", c.status)
		assert.ErrorIs(t, err, c.kind, "status %d", c.status)
		assert.Equal(t, c.status, err.Status)
	}
}

func TestClassifyTransport(t *testing.T) {
	err := classifyTransport(context.DeadlineExceeded)
	assert.Equal(t, "Request timeout. Please try again.", err.Message)
	assert.ErrorIs(t, err, constants.ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = classifyTransport(errors.New("connection refused"))
	assert.Equal(t, "Network error. Please check your internet connection.", err.Message)
	assert.ErrorIs(t, err, constants.ErrNetwork)
}

func TestRefreshOnUnauthorized(t *testing.T) {
	var formCalls, refreshCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/token/refresh/":
			refreshCalls.Add(1)
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "refresh-1", body["refresh"])
			_ = json.NewEncoder(w).Encode(map[string]string{"access": "fresh"})
		case "/api/forms/5/":
			formCalls.Add(1)
			if r.Header.Get("Authorization") != "Bearer fresh" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"id": 5})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	tokens := &memTokens{access: "stale", refresh: "refresh-1"}
	c, err := New(srv.URL+"/api", WithTokenStore(tokens))
	require.NoError(t, err)

	rec, err := c.GetForm(context.Background(), "5")
	require.NoError(t, err)
	assert.Equal(t, 5.0, rec["id"])
	assert.Equal(t, "fresh", tokens.AccessToken())
	assert.Equal(t, int32(2), formCalls.Load())
	assert.Equal(t, int32(1), refreshCalls.Load())
}

func TestRefreshFailureClearsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tokens := &memTokens{access: "stale", refresh: "revoked"}
	c, err := New(srv.URL, WithTokenStore(tokens))
	require.NoError(t, err)

	_, err = c.Profile(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, constants.ErrSessionExpired)
	assert.Equal(t, "Session expired. Please login again.", Message(err))
	assert.True(t, tokens.cleared)
}

func TestRetryOnlyOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/token/refresh/" {
			_ = json.NewEncoder(w).Encode(map[string]string{"access": "fresh"})
			return
		}
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithTokenStore(&memTokens{access: "stale", refresh: "r"}))
	require.NoError(t, err)

	err = c.DeleteForm(context.Background(), "1")
	assert.ErrorIs(t, err, constants.ErrUnauthorized)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithTimeout(20*time.Millisecond))
	require.NoError(t, err)

	_, err = c.Health(context.Background())
	assert.ErrorIs(t, err, constants.ErrTimeout)
}
