// pkg/connector/snowflake.go
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"github.com/elijahcraig45/hanks-tank-data/pkg/config"
)

// SnowflakeConnector implements the DatabaseConnector interface for the
// Snowflake staging database the extraction collaborator reads from.
// It is used read-only; the warehouse is never mutated through it.
type SnowflakeConnector struct {
	db     *sqlx.DB
	logger *zap.Logger
	cfg    *config.StagingConfig
}

// NewSnowflakeConnector creates and initializes a new Snowflake connector
func NewSnowflakeConnector(ctx context.Context, cfg *config.StagingConfig) (*SnowflakeConnector, error) {
	logger := zap.L().Named("snowflake-connector")

	logger.Info("Connecting to Snowflake staging",
		zap.String("account", cfg.Account),
		zap.String("database", cfg.Database),
		zap.String("schema", cfg.Schema),
		zap.String("warehouse", cfg.Warehouse),
		zap.String("user", cfg.User))

	db, err := sqlx.Open("snowflake", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Snowflake connection: %w", err)
	}

	ApplyConnectionSettings(
		db,
		cfg.MaxOpenConns,
		cfg.MaxIdleConns,
		cfg.ConnMaxLifetime,
		cfg.ConnMaxIdleTime,
	)

	if err := PingWithTimeout(ctx, db, 10*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to Snowflake: %w", err)
	}

	connector := &SnowflakeConnector{
		db:     db,
		logger: logger,
		cfg:    cfg,
	}

	LogConnectionStats(logger, cfg.Database, db.DB)
	return connector, nil
}

// DB returns the underlying database handle
func (c *SnowflakeConnector) DB() *sqlx.DB {
	return c.db
}

// DriverName returns the registered sql driver name
func (c *SnowflakeConnector) DriverName() string {
	return "snowflake"
}

// Validate verifies the Snowflake connection and read access
func (c *SnowflakeConnector) Validate() error {
	var version string
	if err := c.db.QueryRow("SELECT CURRENT_VERSION()").Scan(&version); err != nil {
		return fmt.Errorf("failed to query Snowflake version: %w", err)
	}

	c.logger.Info("Snowflake connection validated",
		zap.String("version", version),
		zap.String("database", c.cfg.Database),
		zap.String("schema", c.cfg.Schema))

	return nil
}

// Close closes the database connection
func (c *SnowflakeConnector) Close() error {
	c.logger.Info("Closing Snowflake connection")
	LogConnectionStats(c.logger, c.cfg.Database, c.db.DB)
	return c.db.Close()
}

// QueryWithTimeout executes a query with a timeout
func (c *SnowflakeConnector) QueryWithTimeout(
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
func (c *SnowflakeConnector) ExecWithTimeout(
	ctx context.Context,
	query string,
	timeout time.Duration,
	args ...interface{},
) (sql.Result, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.ExecContext(execCtx, query, args...)
}
