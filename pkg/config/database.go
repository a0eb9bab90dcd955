// pkg/config/database.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/snowflakedb/gosnowflake"
)

// WarehouseConfig holds connection parameters for the analytical warehouse.
// Driver selects the backend: "sqlite3" for a local file warehouse, "pgx"
// for PostgreSQL.
type WarehouseConfig struct {
	Driver string

	// SQLite
	Path string

	// PostgreSQL
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Statement timeout
	StatementTimeout time.Duration
}

// StagingConfig holds Snowflake connection parameters for the staging
// source the extraction collaborator reads raw records from.
type StagingConfig struct {
	User          string
	Password      string
	Account       string
	Warehouse     string
	Database      string
	Schema        string
	Role          string
	Authenticator gosnowflake.AuthType

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Query timeout
	QueryTimeout time.Duration
}

// LoadWarehouseConfig loads warehouse configuration from environment variables
func LoadWarehouseConfig() (*WarehouseConfig, error) {
	driver := getEnv("WAREHOUSE_DRIVER", "sqlite3")

	cfg := &WarehouseConfig{
		Driver: driver,

		MaxOpenConns:     getEnvAsInt("WAREHOUSE_MAX_OPEN_CONNS", 25),
		MaxIdleConns:     getEnvAsInt("WAREHOUSE_MAX_IDLE_CONNS", 10),
		ConnMaxLifetime:  time.Duration(getEnvAsInt("WAREHOUSE_CONN_MAX_LIFETIME_SECONDS", 1800)) * time.Second,
		ConnMaxIdleTime:  time.Duration(getEnvAsInt("WAREHOUSE_CONN_MAX_IDLE_TIME_SECONDS", 600)) * time.Second,
		StatementTimeout: time.Duration(getEnvAsInt("WAREHOUSE_STATEMENT_TIMEOUT_SECONDS", 300)) * time.Second,
	}

	switch driver {
	case "sqlite3":
		cfg.Path = getEnv("WAREHOUSE_PATH", "data/warehouse.db")

	case "pgx":
		user := os.Getenv("POSTGRES_USER")
		if user == "" {
			return nil, errors.New("POSTGRES_USER environment variable is required")
		}

		password := os.Getenv("POSTGRES_PASSWORD")
		if password == "" {
			return nil, errors.New("POSTGRES_PASSWORD environment variable is required")
		}

		database := os.Getenv("POSTGRES_DB")
		if database == "" {
			return nil, errors.New("POSTGRES_DB environment variable is required")
		}

		cfg.Host = getEnv("POSTGRES_HOST", "localhost")
		cfg.Port = getEnvAsInt("POSTGRES_PORT", 5432)
		cfg.User = user
		cfg.Password = password
		cfg.Database = database
		cfg.SSLMode = getEnv("POSTGRES_SSLMODE", "disable")

	default:
		return nil, fmt.Errorf("unsupported warehouse driver: %s", driver)
	}

	return cfg, nil
}

// LoadStagingConfig loads Snowflake staging configuration from environment variables
func LoadStagingConfig() (*StagingConfig, error) {
	user := os.Getenv("SNOWFLAKE_USER")
	if user == "" {
		return nil, errors.New("SNOWFLAKE_USER environment variable is required")
	}

	password := os.Getenv("SNOWFLAKE_PASSWORD")
	if password == "" {
		return nil, errors.New("SNOWFLAKE_PASSWORD environment variable is required")
	}

	account := os.Getenv("SNOWFLAKE_ACCOUNT")
	if account == "" {
		return nil, errors.New("SNOWFLAKE_ACCOUNT environment variable is required")
	}

	warehouse := os.Getenv("SNOWFLAKE_WAREHOUSE")
	if warehouse == "" {
		return nil, errors.New("SNOWFLAKE_WAREHOUSE environment variable is required")
	}

	// Convert authenticator string to proper type
	authString := getEnv("SNOWFLAKE_AUTHENTICATOR", "snowflake")
	var authenticator gosnowflake.AuthType
	switch authString {
	case "snowflake":
		authenticator = gosnowflake.AuthTypeSnowflake
	case "oauth":
		authenticator = gosnowflake.AuthTypeOAuth
	case "externalbrowser":
		authenticator = gosnowflake.AuthTypeExternalBrowser
	case "jwt":
		authenticator = gosnowflake.AuthTypeJwt
	case "okta":
		authenticator = gosnowflake.AuthTypeOkta
	default:
		authenticator = gosnowflake.AuthTypeSnowflake
	}

	cfg := &StagingConfig{
		User:          user,
		Password:      password,
		Account:       account,
		Warehouse:     warehouse,
		Database:      getEnv("SNOWFLAKE_DATABASE", "MLB_STAGING"),
		Schema:        getEnv("SNOWFLAKE_SCHEMA", "PUBLIC"),
		Role:          getEnv("SNOWFLAKE_ROLE", ""),
		Authenticator: authenticator,

		MaxOpenConns:    getEnvAsInt("SNOWFLAKE_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvAsInt("SNOWFLAKE_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: time.Duration(getEnvAsInt("SNOWFLAKE_CONN_MAX_LIFETIME_SECONDS", 600)) * time.Second,
		ConnMaxIdleTime: time.Duration(getEnvAsInt("SNOWFLAKE_CONN_MAX_IDLE_TIME_SECONDS", 300)) * time.Second,
		QueryTimeout:    time.Duration(getEnvAsInt("SNOWFLAKE_QUERY_TIMEOUT_SECONDS", 300)) * time.Second,
	}

	return cfg, nil
}

// Validate ensures the warehouse configuration is usable
func (c *WarehouseConfig) Validate() error {
	switch c.Driver {
	case "sqlite3":
		if c.Path == "" {
			return errors.New("warehouse path is required for sqlite3 driver")
		}
	case "pgx":
		if c.Host == "" || c.Database == "" {
			return errors.New("postgres host and database are required for pgx driver")
		}
	default:
		return fmt.Errorf("unsupported warehouse driver: %s", c.Driver)
	}
	return nil
}

// ConnectionString returns the driver-appropriate DSN
func (c *WarehouseConfig) ConnectionString() string {
	switch c.Driver {
	case "sqlite3":
		return c.Path
	case "pgx":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host,
			c.Port,
			c.User,
			c.Password,
			c.Database,
			c.SSLMode,
		)
	default:
		return ""
	}
}

// ConnectionString returns a formatted Snowflake DSN
func (c *StagingConfig) ConnectionString() string {
	dsn := fmt.Sprintf("%s:%s@%s/%s/%s?warehouse=%s&authenticator=%s",
		c.User,
		c.Password,
		c.Account,
		c.Database,
		c.Schema,
		c.Warehouse,
		c.Authenticator,
	)

	if c.Role != "" {
		dsn += "&role=" + c.Role
	}

	return dsn
}
