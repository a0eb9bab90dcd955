// pkg/config/config.go
package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	// Database connections
	Warehouse *WarehouseConfig
	Staging   *StagingConfig // nil when no staging source is configured

	// Reconciliation settings
	StatusClassFile string // YAML mapping of status codes to priority classes
	RetryAttempts   int    // extraction retry ceiling
	RetryDelay      time.Duration
	ReportDir       string

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadConfig loads configuration from environment variables.
// A .env file in the working directory is honored when present.
func LoadConfig() (*Config, error) {
	// Best effort; missing .env just means the environment is already set
	_ = godotenv.Load()

	cfg := &Config{
		StatusClassFile: getEnv("STATUS_CLASS_FILE", "configs/status_classes.yaml"),
		RetryAttempts:   getEnvAsInt("RETRY_ATTEMPTS", 4),
		RetryDelay:      time.Duration(getEnvAsInt("RETRY_DELAY_MS", 1000)) * time.Millisecond,
		ReportDir:       getEnv("REPORT_DIR", "reports"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
	}

	whConfig, err := LoadWarehouseConfig()
	if err != nil {
		return nil, errors.New("failed to load warehouse configuration: " + err.Error())
	}
	cfg.Warehouse = whConfig

	// Staging source is optional: sync can also be fed from local batches
	// without a live staging database.
	if os.Getenv("SNOWFLAKE_ACCOUNT") != "" {
		stagingConfig, err := LoadStagingConfig()
		if err != nil {
			return nil, errors.New("failed to load staging configuration: " + err.Error())
		}
		cfg.Staging = stagingConfig
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	if c.Warehouse == nil {
		return errors.New("warehouse configuration is required")
	}

	if err := c.Warehouse.Validate(); err != nil {
		return err
	}

	if c.RetryAttempts < 1 {
		return errors.New("retry attempts must be at least 1")
	}

	if c.StatusClassFile == "" {
		return errors.New("status class file is required")
	}

	return nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
