// Package metrics defines the Prometheus instrumentation for the packet
// pipeline and serves it over HTTP.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"icc.tech/netem-agent/internal/config"
)

// Server exposes the scrape endpoint plus a liveness probe at /healthz.
// The zero value is not usable; construct with NewServer.
type Server struct {
	cfg      config.MetricsConfig
	listener net.Listener
	server   *http.Server
}

// NewServer builds a server from the metrics section of the agent
// config. An empty path falls back to /metrics.
func NewServer(cfg config.MetricsConfig) *Server {
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}
	return &Server{cfg: cfg}
}

// Addr returns the bound listen address. Valid only after Start, which
// matters when the config asked for port 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.Listen
	}
	return s.listener.Addr().String()
}

// Start binds the listen address and begins serving. The bind is
// synchronous; an occupied port is reported here, not from the serve
// goroutine.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("metrics listen on %s: %w", s.cfg.Listen, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.Handle(s.cfg.Path, promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("metrics server listening", "addr", s.Addr(), "path", s.cfg.Path)

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

// Stop drains in-flight scrapes and closes the listener.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}

	slog.Info("metrics server stopped")
	return nil
}
