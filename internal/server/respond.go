package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tvinspection/tvinspect/internal/store"
	"github.com/tvinspection/tvinspect/pkg/constants"
	"github.com/tvinspection/tvinspect/pkg/schema"
)

// maxBodySize bounds request bodies; an inspection record is a few KB.
const maxBodySize = 1 << 20

func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_, _ = w.Write(response)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// decodeRecord reads a JSON object from the request body. An empty body
// yields a nil record.
func decodeRecord(w http.ResponseWriter, r *http.Request) (schema.Record, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var rec schema.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("invalid record: %w", err)
	}
	return rec, nil
}

// respondStoreError maps draft store failures to HTTP statuses.
func (s *Server) respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, constants.ErrDraftNotFound):
		respondError(w, http.StatusNotFound, "Draft not found")
	case errors.Is(err, store.ErrReadOnly):
		respondError(w, http.StatusForbidden, "Server is in read-only mode")
	default:
		s.logger.Error().Err(err).Msg("draft store")
		respondError(w, http.StatusInternalServerError, "Failed to access drafts")
	}
}
