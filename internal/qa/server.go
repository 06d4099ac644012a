// SPDX-License-Identifier: MIT

package qa

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/specdr/specdr/internal/config"
	"github.com/specdr/specdr/internal/log"
)

// Server is the QA inspection HTTP server.
type Server struct {
	state    *State
	gatherer prometheus.Gatherer
	version  string
	cfg      config.QAConfig
	logger   zerolog.Logger
}

// NewServer creates a QA server over the given state.
func NewServer(cfg config.QAConfig, state *State, gatherer prometheus.Gatherer, version string) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		state:    state,
		gatherer: gatherer,
		version:  version,
		cfg:      cfg,
		logger:   log.WithComponent("qa"),
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealth)

	// Health and metrics stay unlimited so probes and scrapers never see a
	// 429; the snapshot endpoints are rate limited per client IP.
	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(
			120,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
		))
		r.Get("/api/status", s.handleStatus)
		r.Get("/api/spectra", s.handleSpectra)
		r.Get("/api/masters", s.handleMasters)
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok", "version": s.version})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.state.Snapshot())
}

func (s *Server) handleSpectra(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.state.Snapshot().Spectra)
}

func (s *Server) handleMasters(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.state.Snapshot().Masters)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("write response")
	}
}

// Serve runs the server until ctx is canceled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Router(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str("event", "qa.listening").
			Str("addr", s.cfg.Listen).
			Msg("QA server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info().Str("event", "qa.shutdown").Msg("QA server shutting down")
	return srv.Shutdown(shutdownCtx)
}
