// Package server runs the local companion service: stateless validation
// endpoints, CRUD over locally stored drafts, submission of drafts to the
// backend and the live validation socket.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tvinspection/tvinspect/internal/store"
	"github.com/tvinspection/tvinspect/pkg/schema"
)

// DefaultAutoSaveInterval is how often a live draft with a remote id is
// pushed to the backend while it has unsaved valid changes.
const DefaultAutoSaveInterval = 2 * time.Minute

// Backend receives submitted drafts. *client.Client implements it.
type Backend interface {
	CreateForm(ctx context.Context, payload schema.Record) (schema.Record, error)
	UpdateForm(ctx context.Context, id string, payload schema.Record) (schema.Record, error)
}

type Config struct {
	Addr     string
	ReadOnly bool
	// AutoSaveInterval of zero uses DefaultAutoSaveInterval; a negative
	// value turns auto-save off.
	AutoSaveInterval time.Duration
}

type Server struct {
	config   Config
	store    store.Store
	backend  Backend
	logger   zerolog.Logger
	readOnly atomic.Bool
	upgrader websocket.Upgrader
	router   *mux.Router
}

// New builds the service over s. backend may be nil, in which case
// submission and auto-save are unavailable.
func New(cfg Config, s store.Store, backend Backend, logger zerolog.Logger) *Server {
	if cfg.AutoSaveInterval == 0 {
		cfg.AutoSaveInterval = DefaultAutoSaveInterval
	}
	srv := &Server{
		config:  cfg,
		backend: backend,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    1024,
			WriteBufferSize:   1024,
			EnableCompression: true,
		},
	}
	srv.store = store.NewReadOnlyStore(s, srv.IsReadOnly)
	srv.readOnly.Store(cfg.ReadOnly)
	srv.router = srv.routes()
	return srv
}

// SetReadOnly toggles read-only mode. While on, drafts can be read and
// validated but not saved, deleted or submitted.
func (s *Server) SetReadOnly(readOnly bool) {
	s.readOnly.Store(readOnly)
}

func (s *Server) IsReadOnly() bool {
	return s.readOnly.Load()
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.middleware()...)

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/schema", s.handleSchema).Methods("GET")

	// Stateless checks
	api.HandleFunc("/validate", s.handleValidate).Methods("POST")
	api.HandleFunc("/normalize", s.handleNormalize).Methods("POST")
	api.HandleFunc("/completion", s.handleCompletion).Methods("POST")

	// Drafts
	api.HandleFunc("/drafts", s.handleListDrafts).Methods("GET")
	api.HandleFunc("/drafts", s.handleCreateDraft).Methods("POST")
	api.HandleFunc("/drafts/{id}", s.handleGetDraft).Methods("GET")
	api.HandleFunc("/drafts/{id}", s.handleUpdateDraft).Methods("PUT")
	api.HandleFunc("/drafts/{id}", s.handleDeleteDraft).Methods("DELETE")
	api.HandleFunc("/drafts/{id}/submit", s.handleSubmitDraft).Methods("POST")
	api.HandleFunc("/drafts/{id}/export", s.handleExportDraft).Methods("GET")

	api.HandleFunc("/live", s.handleLive).Methods("GET")

	return router
}

// Run serves until ctx is cancelled, then allows up to 5 seconds for
// active requests to complete.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", s.config.Addr).Bool("read_only", s.IsReadOnly()).Msg("starting local service")

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info().Msg("shutting down local service")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}
