// Package server exposes a built program over HTTP.
//
// Every dispatch forks a fresh scope, optionally restored from an archived
// snapshot, runs the unit until everything it caused has settled, and
// reports the outcome with the resulting store values. Scopes do not
// outlive their request; state carries over between requests only
// through archived snapshots.
//
// Routes:
//
//	POST /v1/dispatch/{unit}   fire a unit (?save=true archives the result)
//	GET  /v1/snapshots         list archived snapshots (?program= filters)
//	GET  /v1/snapshots/{id}    read one archived snapshot
//	GET  /v1/units             the program's units
//	GET  /healthz              store liveness
//	GET  /metrics              Prometheus metrics
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/rill/internal/metrics"
	"github.com/roach88/rill/internal/program"
	"github.com/roach88/rill/internal/store"
)

// DefaultDispatchTimeout bounds how long a dispatch may wait to settle.
const DefaultDispatchTimeout = 30 * time.Second

// Config configures a Server.
type Config struct {
	// Program is the program served. Required.
	Program *program.Program

	// Store archives snapshots and journals ticks. Required.
	Store *store.Store

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Registry collects the kernel metrics served on /metrics.
	// Default: a new registry.
	Registry *prometheus.Registry

	// DispatchTimeout defaults to DefaultDispatchTimeout.
	DispatchTimeout time.Duration

	// MaxSteps overrides the per-tick step quota of forked scopes.
	MaxSteps int
}

// Server serves one program.
type Server struct {
	prog     *program.Program
	store    *store.Store
	log      *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	journal  *store.Journal
	timeout  time.Duration
	maxSteps int
	router   chi.Router
}

// New creates a server for cfg.Program.
func New(cfg Config) (*Server, error) {
	if cfg.Program == nil {
		return nil, errors.New("server: program is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("server: store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = DefaultDispatchTimeout
	}

	log := cfg.Logger.With("program", cfg.Program.Name())
	s := &Server{
		prog:     cfg.Program,
		store:    cfg.Store,
		log:      log,
		registry: cfg.Registry,
		metrics: metrics.New(
			metrics.WithRegistry(cfg.Registry),
			metrics.WithConstLabels(prometheus.Labels{"program": cfg.Program.Name()}),
		),
		journal:  store.NewJournal(cfg.Store, log),
		timeout:  cfg.DispatchTimeout,
		maxSteps: cfg.MaxSteps,
	}
	s.router = s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info("server listening", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("server stopped")
	return nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/dispatch/{unit}", s.handleDispatch)
		r.Get("/snapshots", s.handleListSnapshots)
		r.Get("/snapshots/{id}", s.handleGetSnapshot)
		r.Get("/units", s.handleUnits)
	})
	return r
}

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	reqID := middleware.GetReqID(r.Context())
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", reqID,
			"error", err,
		)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), RequestID: reqID})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.writeError(w, r, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// unitsResponse is the body of GET /v1/units.
type unitsResponse struct {
	Program string             `json:"program"`
	Hash    string             `json:"hash"`
	Units   []program.UnitInfo `json:"units"`
}

func (s *Server) handleUnits(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, unitsResponse{
		Program: s.prog.Name(),
		Hash:    s.prog.Hash(),
		Units:   s.prog.Units(),
	})
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListSnapshots(r.Context(), r.URL.Query().Get("program"))
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.ReadSnapshot(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, r, http.StatusNotFound, err)
		return
	case err != nil:
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
