//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package server provides the HTTP API for running analyses and asking
// questions about them.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/pgEdge/venture-scout/internal/config"
	"github.com/pgEdge/venture-scout/internal/metrics"
	"github.com/pgEdge/venture-scout/internal/pipeline"
	"github.com/pgEdge/venture-scout/internal/report"
)

// AnalysisManager runs analyses and answers questions about them.
type AnalysisManager interface {
	Analyze(ctx context.Context, topic string, opts pipeline.Options, progress pipeline.ProgressFunc) (*pipeline.AnalysisResponse, error)
	Ask(ctx context.Context, topic string, req pipeline.QuestionRequest) (*pipeline.QuestionResponse, error)
	Topics() []pipeline.Info
	Analysis(topic string) (*pipeline.AnalysisDetail, error)
	History(topic string) ([]pipeline.Message, error)
	Export(topic string, format report.Format) (*pipeline.Export, error)
	Delete(topic string) error
	RAGEnabled() bool
	Close() error
}

// Server is the HTTP server for the analysis API.
type Server struct {
	config   *config.Config
	analyses AnalysisManager
	metrics  *metrics.Metrics
	logger   *slog.Logger
	server   *http.Server
	mux      *http.ServeMux
}

// New creates a new HTTP server. m may be nil, in which case /metrics
// is not served.
func New(cfg *config.Config, am AnalysisManager, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:   cfg,
		analyses: am,
		metrics:  m,
		logger:   logger,
		mux:      http.NewServeMux(),
	}

	s.setupRoutes()

	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.applyMiddleware(s.mux)
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	addr := net.JoinHostPort(s.config.Server.ListenAddress, fmt.Sprint(s.config.Server.Port))

	// Analyses run for minutes; the analysis handler lifts the write
	// deadline for its own response.
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting server",
		"address", addr,
		"tls", s.config.Server.TLS.Enabled)

	if s.config.Server.TLS.Enabled {
		return s.serveTLS()
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	return s.server.Serve(listener)
}

// serveTLS starts the server with TLS.
func (s *Server) serveTLS() error {
	s.server.TLSConfig = &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	return s.server.ListenAndServeTLS(
		s.config.Server.TLS.CertFile,
		s.config.Server.TLS.KeyFile,
	)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}

	return nil
}

// Addr returns the server's address. Returns empty string if not started.
func (s *Server) Addr() string {
	if s.server != nil {
		return s.server.Addr
	}
	return ""
}
