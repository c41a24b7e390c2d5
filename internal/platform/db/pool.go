package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig carries the connection settings read from the environment.
type PoolConfig struct {
	URL      string
	MaxConns int32
	MinConns int32
	// Schema is placed first on every connection's search_path. Empty means
	// the server default.
	Schema string
}

func NewPool(ctx context.Context, pc PoolConfig) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(pc.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if pc.MaxConns > 0 {
		cfg.MaxConns = pc.MaxConns
	}
	if pc.MinConns > 0 {
		cfg.MinConns = pc.MinConns
	}
	if pc.Schema != "" {
		if !schemaPattern.MatchString(pc.Schema) {
			return nil, fmt.Errorf("invalid schema name %q", pc.Schema)
		}
		cfg.ConnConfig.RuntimeParams["search_path"] = pc.Schema + ", public"
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
