// Package database provides the PostgreSQL pool, the Redis client used by
// the conversation state store, migrations, and district-scoped access.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a pgxpool connection pool.
type DB struct {
	*pgxpool.Pool
}

// PoolConfig holds connection pool settings. Zero values fall back to
// defaults suited to the pipeline's read-only query load.
type PoolConfig struct {
	URL             string
	MaxConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

func (c *PoolConfig) withDefaults() *PoolConfig {
	out := *c
	if out.MaxConnections == 0 {
		out.MaxConnections = 25
	}
	if out.MaxConnLifetime == 0 {
		out.MaxConnLifetime = time.Hour
	}
	if out.MaxConnIdleTime == 0 {
		out.MaxConnIdleTime = 30 * time.Minute
	}
	return &out
}

// NewConnection creates the analytics store pool and verifies it with a
// ping before any question is accepted.
func NewConnection(ctx context.Context, cfg *PoolConfig) (*DB, error) {
	cfg = cfg.withDefaults()

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConnections
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
