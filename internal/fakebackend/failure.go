package fakebackend

import (
	"crypto/rand"
	"math/big"
	"net/http"
	"time"
)

// cryptoRandInt64 generates a cryptographically secure random int64 in [0, max)
func cryptoRandInt64(rMax int64) int64 {
	if rMax <= 0 {
		return 0
	}
	n, _ := rand.Int(rand.Reader, big.NewInt(rMax))
	return n.Int64()
}

// cryptoRandFloat64 generates a cryptographically secure random float64 in [0.0, 1.0)
func cryptoRandFloat64() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(1<<53))
	return float64(n.Int64()) / float64(1<<53)
}

// FailureType represents the type of failure to inject during request processing
type FailureType string

const (
	// FailureNone indicates no failure injection
	FailureNone FailureType = "none"
	// FailureRequestDelay delays before processing the request
	FailureRequestDelay FailureType = "request_delay"
	// FailureRandomDelay applies random delay up to MaxDelay, or 5 seconds
	FailureRandomDelay FailureType = "random_delay"
	// FailureStatus answers with Status and a {"detail": Message} body
	FailureStatus FailureType = "status"
	// FailureInvalidResponse sends random bytes as a 200 JSON response
	FailureInvalidResponse FailureType = "invalid_response"
	// FailureDropConnection closes the connection without answering
	FailureDropConnection FailureType = "drop_connection"
)

// FailureConfig defines how and when to inject a specific failure type
type FailureConfig struct {
	// Type specifies the type of failure to inject
	Type FailureType
	// Probability of triggering this failure (0.0 to 1.0)
	Probability float64
	// MinDelay is the minimum delay for delay-based failures
	MinDelay time.Duration
	// MaxDelay is the maximum delay for delay-based failures
	MaxDelay time.Duration
	// Status is the HTTP status for FailureStatus
	Status int
	// Message is the detail for FailureStatus
	Message string
}

// applyFailure injects failure into the exchange. It reports whether the
// response has been written and the request must not be processed further.
func (s *Server) applyFailure(w http.ResponseWriter, r *http.Request, failure FailureConfig) bool {
	switch failure.Type {
	case FailureRequestDelay:
		sleep(r, randomDuration(failure.MinDelay, failure.MaxDelay))

	case FailureRandomDelay:
		limit := failure.MaxDelay
		if limit <= 0 {
			limit = 5 * time.Second
		}
		sleep(r, time.Duration(cryptoRandInt64(int64(limit))))

	case FailureStatus:
		status := failure.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		body := map[string]any{}
		if failure.Message != "" {
			body["detail"] = failure.Message
		}
		writeJSON(w, status, body)
		return true

	case FailureInvalidResponse:
		data := make([]byte, 100)
		if _, err := rand.Read(data); err != nil {
			s.Logger.Error().Err(err).Msg("error generating invalid response")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return true

	case FailureDropConnection:
		hj, ok := w.(http.Hijacker)
		if !ok {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"detail": "connection cannot be dropped"})
			return true
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			s.Logger.Error().Err(err).Msg("error hijacking connection")
			return true
		}
		conn.Close()
		return true
	}
	return false
}

func sleep(r *http.Request, d time.Duration) {
	select {
	case <-time.After(d):
	case <-r.Context().Done():
	}
}

func shouldTriggerFailure(probability float64) bool {
	if probability <= 0 {
		return false
	}
	if probability >= 1 {
		return true
	}
	return cryptoRandFloat64() < probability
}

func randomDuration(dMin, dMax time.Duration) time.Duration {
	if dMin >= dMax {
		return dMin
	}
	return dMin + time.Duration(cryptoRandInt64(int64(dMax-dMin)))
}
