// Package statusapi serves read-only status of the adapter over HTTP.
package statusapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/rpattn/tripsync/internal/middleware"
	"github.com/rpattn/tripsync/internal/repository"
	tripsync "github.com/rpattn/tripsync/internal/sync"
)

// CycleSource reports on poll cycles.
type CycleSource interface {
	Last() *tripsync.Summary
	Running() bool
}

// Config controls the listener and allowed browser origins.
type Config struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Server exposes cycle status, the import registry and optional file
// endpoints.
type Server struct {
	cycles   CycleSource
	registry repository.ImportedFileRepository
	upload   http.Handler
	exports  http.Handler
	started  time.Time
	logger   *zap.Logger
}

type Option func(*Server)

// WithExportHandler enables GET /exports and GET /exports/files/{name}.
func WithExportHandler(handler http.Handler) Option {
	return func(s *Server) { s.exports = handler }
}

// WithUploadHandler enables POST /imports.
func WithUploadHandler(handler http.Handler) Option {
	return func(s *Server) { s.upload = handler }
}

func NewServer(cycles CycleSource, registry repository.ImportedFileRepository, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	server := &Server{cycles: cycles, registry: registry, started: time.Now().UTC(), logger: logger}
	for _, opt := range opts {
		opt(server)
	}
	return server
}

// Handler returns the routed handler with CORS and request logging.
func (s *Server) Handler(allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /imports", s.handleImports)
	if s.upload != nil {
		mux.Handle("POST /imports", s.upload)
	}
	if s.exports != nil {
		mux.Handle("GET /exports", s.exports)
		mux.Handle("GET /exports/files/{name}", s.exports)
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return corsHandler.Handler(middleware.LoggingMiddleware(s.logger)(mux))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, cfg Config) error {
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(cfg.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

type statusResponse struct {
	StartedAt time.Time         `json:"startedAt"`
	Running   bool              `json:"running"`
	LastCycle *tripsync.Summary `json:"lastCycle"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		StartedAt: s.started,
		Running:   s.cycles.Running(),
		LastCycle: s.cycles.Last(),
	})
}

func (s *Server) handleImports(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	files, err := s.registry.List(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list imported files", zap.Error(err))
		http.Error(w, "failed to list imported files", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, &paramError{name: name, raw: raw}
	}
	return value, nil
}

type paramError struct {
	name string
	raw  string
}

func (e *paramError) Error() string {
	return "invalid " + e.name + " parameter: " + strconv.Quote(e.raw)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
