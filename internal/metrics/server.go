// Package metrics implements the recorder's Prometheus surface: the
// bagrecorder_* counters in metrics.go, the status.Snapshot-derived
// gauges registered by the recorder at construction time, and the
// HTTP server (this file) that exposes the default registry for
// scraping.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the recorder's default Prometheus registry
// (bagrecorder_* counters plus whatever status gauges the recording
// session registered) over HTTP.
type Server struct {
	addr   string
	path   string
	logger *slog.Logger
	server *http.Server
}

// NewServer creates a metrics server listening on addr and serving the
// registry at path (default "/metrics"). log defaults to
// slog.Default() when nil.
func NewServer(addr, path string, log *slog.Logger) *Server {
	if path == "" {
		path = "/metrics"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		addr:   addr,
		path:   path,
		logger: log,
	}
}

// Start brings up the HTTP listener in the background. Start itself
// never blocks; scrape failures surface as ListenAndServe errors
// logged from the background goroutine.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.Handler())

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting bagrecorder metrics server", "addr", s.addr, "path", s.path)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully drains the metrics HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	s.logger.Info("stopping bagrecorder metrics server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}

	s.logger.Info("bagrecorder metrics server stopped")
	return nil
}
