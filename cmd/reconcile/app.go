// cmd/reconcile/app.go
package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/elijahcraig45/hanks-tank-data/pkg/config"
	"github.com/elijahcraig45/hanks-tank-data/pkg/connector"
	"github.com/elijahcraig45/hanks-tank-data/pkg/extract"
	"github.com/elijahcraig45/hanks-tank-data/pkg/pipeline"
	"github.com/elijahcraig45/hanks-tank-data/pkg/report"
	"github.com/elijahcraig45/hanks-tank-data/pkg/resolve"
	"github.com/elijahcraig45/hanks-tank-data/pkg/schema"
	"github.com/elijahcraig45/hanks-tank-data/pkg/sync"
	"github.com/elijahcraig45/hanks-tank-data/pkg/validate"
	"github.com/elijahcraig45/hanks-tank-data/pkg/warehouse"
)

// app holds the wired collaborators every command needs
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	warehouse connector.DatabaseConnector
	store     *warehouse.Store
	registry  *schema.Registry
	policy    *resolve.AuthorityPolicy
	validator *validate.Engine
	resolver  *resolve.Resolver
	syncer    *sync.Engine
	reporter  *report.Generator
}

// newApp loads configuration and wires the reconciliation components
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := cfg.Logger()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	factory := connector.NewConnectorFactory(cfg, logger)
	conn, err := factory.CreateWarehouseConnector(ctx)
	if err != nil {
		return nil, err
	}

	policy := resolve.DefaultPolicy()
	if cfg.StatusClassFile != "" {
		policy, err = resolve.LoadPolicy(cfg.StatusClassFile)
		if err != nil {
			conn.Close()
			return nil, err
		}
	}

	store := warehouse.NewStore(conn, logger)
	registry := schema.DefaultRegistry()

	return &app{
		cfg:       cfg,
		logger:    logger,
		warehouse: conn,
		store:     store,
		registry:  registry,
		policy:    policy,
		validator: validate.NewEngine(store, registry, logger),
		resolver:  resolve.NewResolver(store, registry, policy, logger),
		syncer:    sync.NewEngine(store, policy, logger),
		reporter:  report.NewGenerator(cfg.ReportDir, logger),
	}, nil
}

// close releases the app's connections and flushes logs
func (a *app) close() {
	if err := a.warehouse.Close(); err != nil {
		a.logger.Warn("Failed to close warehouse connection", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// stagingFetcher builds the retrying fetcher over the configured
// staging source
func (a *app) stagingFetcher(ctx context.Context, table string) (extract.Fetcher, func(), error) {
	factory := connector.NewConnectorFactory(a.cfg, a.logger)
	staging, err := factory.CreateStagingConnector(ctx)
	if err != nil {
		return nil, nil, err
	}

	timeout := 5 * time.Minute
	if a.cfg.Staging != nil && a.cfg.Staging.QueryTimeout > 0 {
		timeout = a.cfg.Staging.QueryTimeout
	}

	fetcher := extract.NewRetryingFetcher(
		extract.NewSQLFetcher(staging, table, timeout, a.logger),
		a.cfg.RetryAttempts,
		a.cfg.RetryDelay,
		a.logger)

	cleanup := func() {
		if err := staging.Close(); err != nil {
			a.logger.Warn("Failed to close staging connection", zap.Error(err))
		}
	}
	return fetcher, cleanup, nil
}

// newPipeline assembles a pipeline with a fresh run log
func (a *app) newPipeline(fetcher extract.Fetcher) (*pipeline.Pipeline, func(), error) {
	runLog, err := pipeline.OpenRunLog(a.cfg.ReportDir, a.logger)
	if err != nil {
		return nil, nil, err
	}

	p := pipeline.New(a.store, a.registry, fetcher, a.syncer,
		a.validator, a.resolver, a.reporter, runLog, a.logger)

	cleanup := func() {
		if err := runLog.Close(); err != nil {
			a.logger.Warn("Failed to close run log", zap.Error(err))
		}
	}
	return p, cleanup, nil
}
