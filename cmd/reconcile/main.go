// cmd/reconcile/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/elijahcraig45/hanks-tank-data/pkg/pipeline"
	"github.com/elijahcraig45/hanks-tank-data/pkg/report"
	"github.com/elijahcraig45/hanks-tank-data/pkg/validate"
	"github.com/elijahcraig45/hanks-tank-data/pkg/warehouse"
)

var (
	flagTable   string
	flagSeasons []int64
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Warehouse reconciliation for game event data",
		Long: `reconcile validates, deduplicates, and synchronizes game event
records in the analytical warehouse. Exit codes: 0 clean, 1 critical
issues found, 2 warnings only.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagTable, "table", "games", "warehouse table to reconcile")
	rootCmd.PersistentFlags().Int64SliceVar(&flagSeasons, "season", nil, "season partitions to process (repeatable)")

	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newDedupCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newPipelineCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// seasonPartitions resolves the --season flags, defaulting to the
// current season
func seasonPartitions() []int64 {
	if len(flagSeasons) > 0 {
		return flagSeasons
	}
	return []int64{pipeline.CurrentSeason(time.Now())}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Run quality checks and write a report",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			var results []validate.Result
			if len(flagSeasons) == 0 {
				results, err = a.validator.Validate(ctx, flagTable, warehouse.Partition{})
				if err != nil {
					return err
				}
				continuity, err := a.validator.CheckContinuity(ctx, flagTable)
				if err != nil {
					return err
				}
				if continuity != nil {
					results = append(results, *continuity)
				}
			} else {
				ts, err := a.registry.Lookup(flagTable)
				if err != nil {
					return err
				}
				for _, season := range flagSeasons {
					part := warehouse.Partition{Field: ts.PartitionField, Value: season}
					rs, err := a.validator.Validate(ctx, flagTable, part)
					if err != nil {
						return err
					}
					results = append(results, rs...)
				}
			}

			rep := a.reporter.Build(results, nil, nil, nil)
			path, err := a.reporter.Write(rep)
			if err != nil {
				return err
			}

			a.logger.Info("Validation complete",
				zap.String("report", path),
				zap.String("status", rep.OverallStatus))

			a.close()
			os.Exit(rep.ExitCode())
			return nil
		},
	}
}

func newDedupCmd() *cobra.Command {
	var (
		execute bool
		details bool
	)

	cmd := &cobra.Command{
		Use:   "dedup",
		Short: "Plan duplicate resolution; apply it with --execute",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			plan, err := a.resolver.Plan(ctx, flagTable, warehouse.Partition{})
			if err != nil {
				return err
			}

			fmt.Printf("Table %s: %d rows, %d duplicate rows across %d keys\n",
				plan.Table, plan.TotalRows, plan.DuplicateRows, len(plan.Groups))

			if details {
				for _, group := range plan.Groups {
					fmt.Printf("  %s: %d rows, survivor ingest_id=%d (status %s), archiving %v\n",
						group.Key, group.Rows, group.Survivor.IngestID,
						group.Survivor.StatusCode, group.Archived)
				}
			}

			if !plan.HasWork() {
				return nil
			}

			if !execute {
				fmt.Println("Dry run; rerun with --execute to apply.")
				return nil
			}

			result, err := a.resolver.Execute(ctx, plan)
			if err != nil {
				return err
			}

			fmt.Printf("Removed %d rows; %d remain. Backup: %s\n",
				result.RowsRemoved, result.FinalRows, result.Backup.BackupTable)
			return nil
		},
	}

	cmd.Flags().BoolVar(&execute, "execute", false, "apply the plan instead of printing it")
	cmd.Flags().BoolVar(&details, "details", false, "list each duplicate group")
	return cmd
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Pull staged records and upsert them into the warehouse",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			ts, err := a.registry.Lookup(flagTable)
			if err != nil {
				return err
			}
			if err := a.store.EnsureEventTable(ctx, ts); err != nil {
				return err
			}

			fetcher, cleanup, err := a.stagingFetcher(ctx, flagTable)
			if err != nil {
				return err
			}
			defer cleanup()

			for _, season := range seasonPartitions() {
				part := warehouse.Partition{Field: ts.PartitionField, Value: season}
				records, err := fetcher.Fetch(ctx, part)
				if err != nil {
					return err
				}

				result, err := a.syncer.Sync(ctx, flagTable, records)
				if err != nil {
					return err
				}

				fmt.Printf("%s: received=%d inserted=%d updated=%d skipped=%d failed=%d\n",
					part, result.Received, result.Inserted, result.Updated,
					result.Skipped, result.Failed())
			}
			return nil
		},
	}
}

func newPipelineCmd() *cobra.Command {
	var (
		dryRun       bool
		backfillFrom int64
		backfillTo   int64
	)

	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run the full extract, sync, validate, dedup pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			partitions := seasonPartitions()
			if backfillFrom != 0 || backfillTo != 0 {
				partitions, err = pipeline.BackfillPartitions(backfillFrom, backfillTo)
				if err != nil {
					return err
				}
			}

			fetcher, cleanup, err := a.stagingFetcher(ctx, flagTable)
			if err != nil {
				return err
			}
			defer cleanup()

			p, closeLog, err := a.newPipeline(fetcher)
			if err != nil {
				return err
			}
			defer closeLog()
			p.WithDryRun(dryRun)

			summary, err := p.Run(ctx, flagTable, partitions)
			if err != nil {
				return err
			}

			rendered, err := report.Render(summary.Report)
			if err != nil {
				return err
			}
			fmt.Println(rendered)
			fmt.Printf("Report written to %s\n", summary.ReportPath)

			code := summary.Report.ExitCode()
			closeLog()
			cleanup()
			a.close()
			os.Exit(code)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "fetch and validate without mutating the warehouse")
	cmd.Flags().Int64Var(&backfillFrom, "backfill-from", 0, "first season of a backfill range")
	cmd.Flags().Int64Var(&backfillTo, "backfill-to", 0, "last season of a backfill range")
	return cmd
}
