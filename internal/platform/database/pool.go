// Package database opens the PostgreSQL pool behind the ledger store and
// applies the embedded schema migrations.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"certify/internal/platform/config"
)

const connectTimeout = 5 * time.Second

// Pool is the shared *sql.DB for the ledger and outbox tables.
type Pool struct {
	db *sql.DB
}

// New opens and pings the pool. It returns nil, nil when no URL is
// configured so callers can fall back to another backend.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Pool{db: db}, nil
}

// DB returns the underlying handle.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Health fails when the database is unreachable or a migration was left
// half applied. A dirty schema would let commits write into tables that do
// not match the store's queries.
func (p *Pool) Health(ctx context.Context) error {
	if p == nil || p.db == nil {
		return errors.New("database not configured")
	}
	var dirty bool
	err := p.db.QueryRowContext(ctx, `SELECT dirty FROM schema_migrations LIMIT 1`).Scan(&dirty)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return errors.New("database schema not migrated")
	case err != nil:
		return fmt.Errorf("check schema version: %w", err)
	case dirty:
		return errors.New("database schema is dirty")
	}
	return nil
}

// Close releases the pool.
func (p *Pool) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
