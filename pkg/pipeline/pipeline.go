// pkg/pipeline/pipeline.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/elijahcraig45/hanks-tank-data/pkg/extract"
	"github.com/elijahcraig45/hanks-tank-data/pkg/report"
	"github.com/elijahcraig45/hanks-tank-data/pkg/resolve"
	"github.com/elijahcraig45/hanks-tank-data/pkg/schema"
	"github.com/elijahcraig45/hanks-tank-data/pkg/sync"
	"github.com/elijahcraig45/hanks-tank-data/pkg/validate"
	"github.com/elijahcraig45/hanks-tank-data/pkg/warehouse"
)

// Pipeline orchestrates one reconciliation run: per-partition extract,
// sync, and validate, then table-wide duplicate resolution and a final
// report. Every partition is checkpointed so an interrupted run resumes
// where it stopped.
type Pipeline struct {
	store     *warehouse.Store
	registry  *schema.Registry
	fetcher   extract.Fetcher
	syncer    *sync.Engine
	validator *validate.Engine
	resolver  *resolve.Resolver
	reporter  *report.Generator
	runLog    *RunLog
	logger    *zap.Logger
	dryRun    bool
}

// New creates a pipeline from its collaborators
func New(
	store *warehouse.Store,
	registry *schema.Registry,
	fetcher extract.Fetcher,
	syncer *sync.Engine,
	validator *validate.Engine,
	resolver *resolve.Resolver,
	reporter *report.Generator,
	runLog *RunLog,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		store:     store,
		registry:  registry,
		fetcher:   fetcher,
		syncer:    syncer,
		validator: validator,
		resolver:  resolver,
		reporter:  reporter,
		runLog:    runLog,
		logger:    logger.Named("pipeline"),
	}
}

// WithDryRun switches the pipeline into analysis-only mode: records are
// fetched and validated but the warehouse is never mutated
func (p *Pipeline) WithDryRun(dryRun bool) *Pipeline {
	p.dryRun = dryRun
	return p
}

// RunSummary is the outcome of one pipeline run
type RunSummary struct {
	Table              string         `json:"table"`
	Processed          []string       `json:"processed"`
	SkippedCheckpoints []string       `json:"skippedCheckpoints"`
	FailedPartitions   []string       `json:"failedPartitions"`
	Report             *report.Report `json:"-"`
	ReportPath         string         `json:"reportPath,omitempty"`
	DryRun             bool           `json:"dryRun"`
}

// Run executes the pipeline for one table over the given partition
// values. Partitions whose checkpoint is already complete are skipped.
// Exhausted extraction retries fail only the affected partition; the
// run continues and the partition stays incomplete for the next run.
func (p *Pipeline) Run(ctx context.Context, table string, partitions []int64) (*RunSummary, error) {
	ts, err := p.registry.Lookup(table)
	if err != nil {
		return nil, err
	}

	if err := p.store.EnsureEventTable(ctx, ts); err != nil {
		return nil, err
	}
	if err := p.store.EnsureCheckpointTable(ctx); err != nil {
		return nil, err
	}

	// A structural mismatch blocks loading outright; syncing into a
	// table missing declared columns would corrupt every batch.
	schemaResult, err := p.validator.CheckSchema(ctx, table)
	if err != nil {
		return nil, err
	}
	if schemaResult.Severity == validate.SeverityCritical {
		return nil, fmt.Errorf("schema mismatch on %s blocks loading: %s", table, schemaResult.Message)
	}

	summary := &RunSummary{Table: table, DryRun: p.dryRun}
	metrics := NewRunMetrics(p.logger)
	var allResults []validate.Result
	var syncResults []*sync.Result

	for _, value := range partitions {
		part := warehouse.Partition{Field: ts.PartitionField, Value: value}
		key := fmt.Sprintf("%d", value)

		done, err := p.store.IsCheckpointComplete(ctx, table, key)
		if err != nil {
			return nil, err
		}
		if done {
			p.logger.Info("Skipping completed partition",
				zap.String("table", table),
				zap.String("partition", part.String()))
			p.runLog.Record(EventSkipped, part.String(), "checkpoint already complete")
			summary.SkippedCheckpoints = append(summary.SkippedCheckpoints, key)
			continue
		}

		metrics.StartPartition(part.String())
		results, syncResult, recordsRead, err := p.runPartition(ctx, ts, part)
		if err != nil {
			if errors.Is(err, extract.ErrRetryExhausted) {
				metrics.RecordPartitionFailure(part.String())
				p.logger.Error("Partition extraction exhausted retries",
					zap.String("table", table),
					zap.String("partition", part.String()),
					zap.Error(err))
				p.runLog.Record(EventFailed, part.String(), err.Error())
				if cpErr := p.store.SaveCheckpoint(ctx, table, key,
					warehouse.CheckpointIncomplete, err.Error()); cpErr != nil {
					return nil, cpErr
				}
				summary.FailedPartitions = append(summary.FailedPartitions, key)
				continue
			}
			return nil, err
		}

		allResults = append(allResults, results...)
		if syncResult != nil {
			syncResults = append(syncResults, syncResult)
			metrics.EndPartition(part.String(), recordsRead,
				syncResult.Inserted, syncResult.Updated, syncResult.Skipped, syncResult.Failed())
		} else {
			metrics.EndPartition(part.String(), recordsRead, 0, 0, 0, 0)
		}

		if !p.dryRun {
			detail := ""
			if syncResult != nil {
				detail = fmt.Sprintf("inserted=%d updated=%d skipped=%d failed=%d",
					syncResult.Inserted, syncResult.Updated, syncResult.Skipped, syncResult.Failed())
			}
			if err := p.store.SaveCheckpoint(ctx, table, key,
				warehouse.CheckpointComplete, detail); err != nil {
				return nil, err
			}
		}
		p.runLog.Record(EventProcessed, part.String(), "partition reconciled")
		summary.Processed = append(summary.Processed, key)
	}

	plan, execResult, err := p.resolveDuplicates(ctx, table)
	if err != nil {
		return nil, err
	}

	rep := p.reporter.Build(allResults, execResult, plan, syncResults)
	summary.Report = rep

	path, err := p.reporter.Write(rep)
	if err != nil {
		return nil, err
	}
	summary.ReportPath = path
	p.runLog.Record(EventReport, "", path)

	metrics.Complete()
	p.logger.Info("Pipeline run finished",
		zap.String("table", table),
		zap.Int("processed", len(summary.Processed)),
		zap.Int("skipped", len(summary.SkippedCheckpoints)),
		zap.Int("failed", len(summary.FailedPartitions)),
		zap.String("status", rep.OverallStatus),
		zap.String("metrics", metrics.Summary()))

	return summary, nil
}

// runPartition extracts, syncs, and validates one partition
func (p *Pipeline) runPartition(ctx context.Context, ts *schema.TableSchema, part warehouse.Partition) ([]validate.Result, *sync.Result, int, error) {
	records, err := p.fetcher.Fetch(ctx, part)
	if err != nil {
		return nil, nil, 0, err
	}
	p.runLog.Record(EventFetched, part.String(),
		fmt.Sprintf("%d records", len(records)))

	var syncResult *sync.Result
	if p.dryRun {
		p.logger.Info("Dry run: skipping sync",
			zap.String("partition", part.String()),
			zap.Int("records", len(records)))
	} else {
		syncResult, err = p.syncer.Sync(ctx, ts.Name, records)
		if err != nil {
			return nil, nil, 0, err
		}
		p.runLog.Record(EventSynced, part.String(),
			fmt.Sprintf("inserted=%d updated=%d skipped=%d failed=%d",
				syncResult.Inserted, syncResult.Updated, syncResult.Skipped, syncResult.Failed()))
	}

	results, err := p.validator.Validate(ctx, ts.Name, part)
	if err != nil {
		return nil, nil, 0, err
	}

	return results, syncResult, len(records), nil
}

// resolveDuplicates plans table-wide duplicate resolution and, outside
// dry runs, executes it
func (p *Pipeline) resolveDuplicates(ctx context.Context, table string) (*resolve.DuplicatePlan, *resolve.ExecuteResult, error) {
	plan, err := p.resolver.Plan(ctx, table, warehouse.Partition{})
	if err != nil {
		return nil, nil, err
	}

	if !plan.HasWork() {
		return plan, nil, nil
	}

	if p.dryRun {
		p.runLog.Record(EventDedupPlanned, "",
			fmt.Sprintf("%d duplicate rows across %d keys (dry run)", plan.DuplicateRows, len(plan.Groups)))
		return plan, nil, nil
	}

	execResult, err := p.resolver.Execute(ctx, plan)
	if err != nil {
		return nil, nil, err
	}
	p.runLog.Record(EventDedupApplied, "",
		fmt.Sprintf("removed %d rows, backup %s", execResult.RowsRemoved, execResult.Backup.BackupTable))

	return plan, execResult, nil
}

// BackfillPartitions builds the inclusive partition range for a
// backfill run
func BackfillPartitions(from, to int64) ([]int64, error) {
	if from > to {
		return nil, fmt.Errorf("invalid backfill range: %d > %d", from, to)
	}
	partitions := make([]int64, 0, to-from+1)
	for v := from; v <= to; v++ {
		partitions = append(partitions, v)
	}
	return partitions, nil
}

// CurrentSeason returns the partition value for the current season,
// using the convention that a season is named by its calendar year.
func CurrentSeason(now time.Time) int64 {
	return int64(now.UTC().Year())
}
