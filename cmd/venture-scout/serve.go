//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pgEdge/venture-scout/internal/config"
	"github.com/pgEdge/venture-scout/internal/metrics"
	"github.com/pgEdge/venture-scout/internal/pipeline"
	"github.com/pgEdge/venture-scout/internal/server"
)

func newServeCommand(v *viper.Viper) *cobra.Command {
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, newLogger(os.Stdout, cfg))
		},
	}

	serve.Flags().String(keyListen, "", "listen address as host:port (overrides server.listen_address and server.port)")
	_ = v.BindPFlag(keyListen, serve.Flags().Lookup(keyListen))

	return serve
}

func runServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("configuration loaded",
		"analysis_provider", cfg.Analysis.LLM.Provider,
		"analysis_model", cfg.Analysis.LLM.Model,
		"rag_enabled", cfg.RAG.IsEnabled(),
		"search_provider", cfg.Tools.SearchProvider)

	m := metrics.New()

	mgr, err := pipeline.NewManager(ctx, pipeline.ManagerConfig{
		Config:  cfg,
		Logger:  logger,
		Metrics: m,
	})
	if err != nil {
		return fmt.Errorf("failed to create analysis manager: %w", err)
	}
	defer func() {
		if err := mgr.Close(); err != nil {
			logger.Error("failed to close analysis manager", "error", err)
		}
	}()

	srv := server.New(cfg, mgr, m, logger)

	// Handle graceful shutdown
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdownCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal", "signal", sig)

		// Give 30 seconds for graceful shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	}
}
