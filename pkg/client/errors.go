package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"

	"github.com/tvinspection/tvinspect/pkg/constants"
)

// APIError is the error of a failed backend call. Message is suitable for
// showing to the user as is.
type APIError struct {
	// Status is the HTTP status, 0 when no response was received.
	Status  int
	Message string
	// Body is the decoded JSON error body, when there was one.
	Body map[string]any

	kind  error
	cause error
}

func (e *APIError) Error() string {
	return e.Message
}

// Unwrap exposes the sentinel of the error class and, for transport
// failures, the underlying error.
func (e *APIError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.kind != nil {
		errs = append(errs, e.kind)
	}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

func classifyTransport(err error) *APIError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &APIError{Message: "Request timeout. Please try again.", kind: constants.ErrTimeout, cause: err}
	}
	return &APIError{Message: "Network error. Please check your internet connection.", kind: constants.ErrNetwork, cause: err}
}

func classifyStatus(status int, body []byte) *APIError {
	var data map[string]any
	_ = json.Unmarshal(body, &data)

	e := &APIError{Status: status, Body: data}
	detail := detailOf(data)
	or := func(msg string) string {
		if detail != "" {
			return detail
		}
		return msg
	}

	switch status {
	case http.StatusBadRequest:
		e.kind = constants.ErrBadRequest
		if v, ok := data["validation_errors"].(map[string]any); ok {
			e.Message = formatValidationErrors(v)
		} else {
			e.Message = or("Invalid data provided. Please check your input.")
		}
	case http.StatusUnauthorized:
		e.kind = constants.ErrUnauthorized
		e.Message = "Authentication required. Please login again."
	case http.StatusForbidden:
		e.kind = constants.ErrForbidden
		e.Message = "You do not have permission to perform this action."
	case http.StatusNotFound:
		e.kind = constants.ErrNotFound
		e.Message = "The requested resource was not found."
	case http.StatusConflict:
		e.kind = constants.ErrConflict
		e.Message = or("A conflict occurred. The resource may already exist.")
	case http.StatusUnprocessableEntity:
		e.kind = constants.ErrUnprocessable
		e.Message = "Invalid data format. Please check your input."
	case http.StatusTooManyRequests:
		e.kind = constants.ErrRateLimited
		e.Message = "Too many requests. Please wait a moment and try again."
	case http.StatusInternalServerError:
		e.kind = constants.ErrServer
		e.Message = "Server error occurred. Please try again later."
	case http.StatusBadGateway:
		e.kind = constants.ErrUnavailable
		e.Message = "Service temporarily unavailable. Please try again later."
	case http.StatusServiceUnavailable:
		e.kind = constants.ErrUnavailable
		e.Message = "Service maintenance in progress. Please try again later."
	default:
		e.kind = constants.ErrServer
		if status < http.StatusInternalServerError {
			e.kind = constants.ErrBadRequest
		}
		e.Message = or(fmt.Sprintf("Server error (%d). Please try again.", status))
	}
	return e
}

// detailOf returns the first non-empty of detail, error and message.
func detailOf(data map[string]any) string {
	for _, key := range []string{"detail", "error", "message"} {
		if s, ok := data[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// formatValidationErrors renders {"field": ["a", "b"]} as
// "Validation errors: field: a, b", fields in name order.
func formatValidationErrors(v map[string]any) string {
	fields := make([]string, 0, len(v))
	for k := range v {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		var msgs []string
		switch t := v[field].(type) {
		case []any:
			for _, m := range t {
				msgs = append(msgs, fmt.Sprint(m))
			}
		default:
			msgs = append(msgs, fmt.Sprint(t))
		}
		parts = append(parts, field+": "+strings.Join(msgs, ", "))
	}
	return "Validation errors: " + strings.Join(parts, "; ")
}

// Message returns the user-facing message of err: the APIError message when
// err wraps one, err.Error() otherwise.
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
