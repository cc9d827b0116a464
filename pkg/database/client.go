// Package database provides the embedded SQLite client and migration
// utilities. SQLite holds the durable history (audit, archives, registry,
// keys, Flight Recorder); JSON snapshots elsewhere are caches.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // register the "sqlite" driver
)

// Config holds database configuration.
type Config struct {
	// Path is the database file, or ":memory:" for tests.
	Path string

	// Connection pool settings. SQLite tolerates a single writer, so
	// MaxOpenConns above 1 relies on the busy timeout below.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns production defaults for the given file path.
func DefaultConfig(path string) Config {
	return Config{
		Path:            path,
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
	}
}

// Client wraps the sql.DB handle.
type Client struct {
	db *sql.DB
}

// DB returns the underlying handle for direct queries and health checks.
func (c *Client) DB() *sql.DB {
	return c.db
}

// Close closes the underlying database.
func (c *Client) Close() error {
	return c.db.Close()
}

// NewClient opens the database, configures pooling, and applies pending
// migrations. WAL mode keeps readers unblocked during snapshot-heavy writes.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", cfg.Path)
	if cfg.Path == ":memory:" {
		dsn = "file::memory:?cache=shared&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Client{db: db}, nil
}

// Health reports basic connectivity and pool stats.
func Health(ctx context.Context, db *sql.DB) (map[string]any, error) {
	if err := db.PingContext(ctx); err != nil {
		return map[string]any{"status": "unreachable"}, err
	}
	stats := db.Stats()
	return map[string]any{
		"status":           "ok",
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
	}, nil
}
