// pkg/connector/sqlite.go
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/elijahcraig45/hanks-tank-data/pkg/config"
)

// SQLiteConnector implements the DatabaseConnector interface for a
// file-backed (or in-memory) SQLite warehouse
type SQLiteConnector struct {
	db     *sqlx.DB
	logger *zap.Logger
	path   string
}

// NewSQLiteConnector creates and initializes a new SQLite connector
func NewSQLiteConnector(ctx context.Context, cfg *config.WarehouseConfig) (*SQLiteConnector, error) {
	logger := zap.L().Named("sqlite-connector")

	logger.Info("Opening SQLite warehouse", zap.String("path", cfg.Path))

	db, err := sqlx.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite warehouse: %w", err)
	}

	// SQLite tolerates a single writer; keep the pool small so DDL
	// swaps see a consistent handle.
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 || maxOpen > 4 {
		maxOpen = 1
	}
	ApplyConnectionSettings(db, maxOpen, cfg.MaxIdleConns, cfg.ConnMaxLifetime, cfg.ConnMaxIdleTime)

	if err := PingWithTimeout(ctx, db, 5*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to SQLite warehouse: %w", err)
	}

	return &SQLiteConnector{
		db:     db,
		logger: logger,
		path:   cfg.Path,
	}, nil
}

// DB returns the underlying database handle
func (c *SQLiteConnector) DB() *sqlx.DB {
	return c.db
}

// DriverName returns the registered sql driver name
func (c *SQLiteConnector) DriverName() string {
	return "sqlite3"
}

// Validate verifies the SQLite connection and write permissions
func (c *SQLiteConnector) Validate() error {
	var version string
	if err := c.db.QueryRow("SELECT sqlite_version()").Scan(&version); err != nil {
		return fmt.Errorf("failed to query SQLite version: %w", err)
	}
	c.logger.Info("Connected to SQLite", zap.String("version", version))

	// Check write permission with a throwaway temp table
	_, err := c.db.Exec(`
		CREATE TEMP TABLE _permission_check (id INTEGER PRIMARY KEY, test TEXT);
		INSERT INTO _permission_check (test) VALUES ('test');
		DROP TABLE _permission_check;
	`)
	if err != nil {
		return fmt.Errorf("permission validation failed: %w", err)
	}

	return nil
}

// Close closes the database connection
func (c *SQLiteConnector) Close() error {
	c.logger.Info("Closing SQLite warehouse")
	return c.db.Close()
}

// QueryWithTimeout executes a query with a timeout
func (c *SQLiteConnector) QueryWithTimeout(
	ctx context.Context,
	query string,
	timeout time.Duration,
	args ...interface{},
) (*sqlx.Rows, error) {
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.QueryxContext(queryCtx, query, args...)
}

// ExecWithTimeout executes a statement with a timeout
func (c *SQLiteConnector) ExecWithTimeout(
	ctx context.Context,
	query string,
	timeout time.Duration,
	args ...interface{},
) (sql.Result, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.ExecContext(execCtx, query, args...)
}
