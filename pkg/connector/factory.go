// pkg/connector/factory.go
package connector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/elijahcraig45/hanks-tank-data/pkg/config"
)

// ConnectorFactory creates database connectors
type ConnectorFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewConnectorFactory creates a new connector factory
func NewConnectorFactory(cfg *config.Config, logger *zap.Logger) *ConnectorFactory {
	return &ConnectorFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateWarehouseConnector creates the connector for the analytical
// warehouse, selected by the configured driver
func (f *ConnectorFactory) CreateWarehouseConnector(ctx context.Context) (DatabaseConnector, error) {
	f.logger.Info("Creating warehouse connector",
		zap.String("driver", f.cfg.Warehouse.Driver))

	switch f.cfg.Warehouse.Driver {
	case "sqlite3":
		conn, err := NewSQLiteConnector(ctx, f.cfg.Warehouse)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite connector: %w", err)
		}
		return conn, nil

	case "pgx":
		conn, err := NewPostgresConnector(ctx, f.cfg.Warehouse)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL connector: %w", err)
		}
		return conn, nil

	default:
		return nil, fmt.Errorf("unsupported warehouse driver: %s", f.cfg.Warehouse.Driver)
	}
}

// CreateStagingConnector creates the Snowflake staging connector used by
// the extraction collaborator. Returns an error if no staging source is
// configured.
func (f *ConnectorFactory) CreateStagingConnector(ctx context.Context) (*SnowflakeConnector, error) {
	if f.cfg.Staging == nil {
		return nil, fmt.Errorf("no staging source configured")
	}

	f.logger.Info("Creating Snowflake staging connector")

	conn, err := NewSnowflakeConnector(ctx, f.cfg.Staging)
	if err != nil {
		return nil, fmt.Errorf("failed to create Snowflake connector: %w", err)
	}

	return conn, nil
}
