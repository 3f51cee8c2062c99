//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package database provides the PostgreSQL/pgvector backed chunk store.
package database

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pgEdge/venture-scout/internal/config"
)

// Pool wraps a pgxpool connection pool.
type Pool struct {
	pool   *pgxpool.Pool
	config config.DatabaseConfig
}

// NewPool creates a new database connection pool and verifies it.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Pool{
		pool:   pool,
		config: cfg,
	}, nil
}

// buildConnectionString constructs a libpq keyword/value connection string.
func buildConnectionString(cfg config.DatabaseConfig) string {
	parts := []string{
		"host=" + quoteValue(cfg.Host),
		fmt.Sprintf("port=%d", cfg.Port),
		"dbname=" + quoteValue(cfg.Database),
	}

	// Username: config > PGUSER > USER
	username := cfg.Username
	if username == "" {
		username = os.Getenv("PGUSER")
	}
	if username == "" {
		username = os.Getenv("USER")
	}

	optional := []struct{ key, value string }{
		{"user", username},
		{"password", cfg.Password},
		{"sslmode", cfg.SSLMode},
		{"sslcert", cfg.SSLCert},
		{"sslkey", cfg.SSLKey},
		{"sslrootcert", cfg.SSLRootCA},
	}
	for _, o := range optional {
		if o.value != "" {
			parts = append(parts, o.key+"="+quoteValue(o.value))
		}
	}

	return strings.Join(parts, " ")
}

// quoteValue quotes a connection string value when it contains spaces,
// quotes or backslashes.
func quoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Ping verifies the database connection.
func (p *Pool) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close closes the connection pool.
func (p *Pool) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}
