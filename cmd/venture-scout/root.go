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
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pgEdge/venture-scout/internal/config"
)

const envPrefix = "VENTURE_SCOUT"

// Keys shared by cobra flags, viper and VENTURE_SCOUT_* variables.
const (
	keyConfig   = "config"
	keyLogLevel = "log-level"
	keyListen   = "listen"
)

// newViper returns a viper instance reading VENTURE_SCOUT_* variables.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func newRootCommand() *cobra.Command {
	v := newViper()

	root := &cobra.Command{
		Use:   "venture-scout",
		Short: "Multi-agent startup topic analysis with follow-up questions",
		Long: `pgEdge Venture Scout researches a startup topic with a team of agents,
writes a markdown report and answers questions about it.

Configuration is read from --config, /etc/pgedge/venture-scout.yaml or
venture-scout.yaml in the binary directory. Flags may also be set with
VENTURE_SCOUT_* environment variables, e.g. VENTURE_SCOUT_LOG_LEVEL=debug.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String(keyConfig, "", "path to configuration file")
	root.PersistentFlags().String(keyLogLevel, "", "log level (debug, info, warn, error)")
	_ = v.BindPFlag(keyConfig, root.PersistentFlags().Lookup(keyConfig))
	_ = v.BindPFlag(keyLogLevel, root.PersistentFlags().Lookup(keyLogLevel))

	root.AddCommand(
		newServeCommand(v),
		newAnalyzeCommand(v),
		newOpenAPICommand(),
		newVersionCommand(),
	)

	return root
}

// loadConfig loads the configuration file, applies flag and environment
// overrides and validates the result.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(v.GetString(keyConfig))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if level := v.GetString(keyLogLevel); level != "" {
		cfg.Logging.Level = level
	}

	if listen := v.GetString(keyListen); listen != "" {
		host, port, err := splitListen(listen)
		if err != nil {
			return nil, err
		}
		cfg.Server.ListenAddress = host
		cfg.Server.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// splitListen parses host:port. An empty host listens on all interfaces.
func splitListen(listen string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(listen)
	if err != nil {
		return "", 0, fmt.Errorf("invalid listen address %q: %w", listen, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid listen port %q", portStr)
	}
	if host == "" {
		host = "0.0.0.0"
	}
	return host, port, nil
}

// newLogger builds the process logger and makes it the default.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level, err := config.ParseLogLevel(cfg.Logging.Level)
	if err != nil {
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return logger
}
