package fakebackend

import "net/http"

// RequestMatcher defines criteria for matching incoming requests.
type RequestMatcher struct {
	// Method is the HTTP method to match; empty matches any method
	Method string
	// Path is the request path below /api, e.g. "/forms/"
	Path string
	// Matcher is an optional function to match on the request itself.
	// If nil, only the method and path are used for matching.
	Matcher func(r *http.Request) bool
}

func (m RequestMatcher) matches(r *http.Request, path string) bool {
	if m.Method != "" && m.Method != r.Method {
		return false
	}
	if m.Path != path {
		return false
	}
	return m.Matcher == nil || m.Matcher(r)
}

// StubResponse defines a pre-configured response for matching requests.
// A stub with neither Status nor Body only injects its failures and lets
// the request through to the regular handlers.
type StubResponse struct {
	// Matcher determines which requests this stub should handle
	Matcher RequestMatcher
	// Status is the HTTP status to answer with; 0 means 200 when Body is set
	Status int
	// Body is encoded as JSON
	Body any
	// Failures defines failure injection configurations for this response
	Failures []FailureConfig
}

func (s StubResponse) answers() bool {
	return s.Status != 0 || s.Body != nil
}

// MatchRoute creates a RequestMatcher that matches by method and path
func MatchRoute(method, path string) RequestMatcher {
	return RequestMatcher{
		Method: method,
		Path:   path,
	}
}

// SimpleStubResponse creates a basic stub response without failure injection
func SimpleStubResponse(method, path string, body any) StubResponse {
	return StubResponse{
		Matcher: MatchRoute(method, path),
		Status:  http.StatusOK,
		Body:    body,
	}
}

// ErrorStubResponse creates a stub response that answers with an error body
func ErrorStubResponse(method, path string, status int, body any) StubResponse {
	return StubResponse{
		Matcher: MatchRoute(method, path),
		Status:  status,
		Body:    body,
	}
}
