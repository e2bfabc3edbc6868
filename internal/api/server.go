// Package api serves the crawler's operational surface: health, crawl
// progress, and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/opencourtdata/judgment-crawler/internal/crawler"
)

// ProgressSource exposes the tracker's current state for reporting.
type ProgressSource interface {
	Snapshot() map[string]crawler.CourtProgress
}

// Server is the HTTP status server that runs alongside a crawl.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewServer builds the status server on addr.
func NewServer(addr string, progress ProgressSource, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/progress", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(progress.Snapshot()); err != nil {
			logger.Warn("encode progress response", zap.Error(err))
		}
	})
	r.Handle("/metrics", promhttp.Handler())

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start serves in a background goroutine until Shutdown.
func (s *Server) Start() {
	go func() {
		s.logger.Info("status server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server stopped", zap.Error(err))
		}
	}()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
