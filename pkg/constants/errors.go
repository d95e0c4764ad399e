package constants

import "errors"

// Errors returned by the API client, classified from the backend response.
var (
	ErrBadRequest     = errors.New("bad request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrUnprocessable  = errors.New("unprocessable entity")
	ErrRateLimited    = errors.New("rate limited")
	ErrServer         = errors.New("server error")
	ErrUnavailable    = errors.New("service unavailable")
	ErrNetwork        = errors.New("network error")
	ErrTimeout        = errors.New("timeout")
	ErrSessionExpired = errors.New("session expired")
)

var (
	ErrNoBaseURL      = errors.New("base url not set")
	ErrNoToken        = errors.New("no token received")
	ErrInvalidRecord  = errors.New("inspection record failed validation")
	ErrDraftNotFound  = errors.New("draft not found")
	ErrUnknownSection = errors.New("unknown section")
	ErrUnknownField   = errors.New("unknown field")
	ErrPersonnelIndex = errors.New("personnel index out of range")
)
