// pkg/resolve/resolver.go
package resolve

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/elijahcraig45/hanks-tank-data/pkg/model"
	"github.com/elijahcraig45/hanks-tank-data/pkg/schema"
	"github.com/elijahcraig45/hanks-tank-data/pkg/warehouse"
)

// DuplicateGroup holds all physical rows found for one natural key,
// the survivor chosen by the authority policy, and the ingestion ids
// slated for removal.
type DuplicateGroup struct {
	Key       model.NaturalKey    `json:"key"`
	Rows      int                 `json:"rows"`
	Survivor  model.EventRecord   `json:"survivor"`
	Archived  []int64             `json:"archivedIngestIds"`
	Rationale string              `json:"rationale"`
	Losers    []model.EventRecord `json:"-"`
}

// DuplicatePlan is the pure output of duplicate analysis. Planning
// never mutates the warehouse and produces the same plan for the same
// table state no matter how many times it runs.
type DuplicatePlan struct {
	Table         string           `json:"table"`
	Partition     string           `json:"partition"`
	TotalRows     int64            `json:"totalRows"`
	DuplicateRows int64            `json:"duplicateRows"`
	Groups        []DuplicateGroup `json:"groups"`
	PlannedAt     time.Time        `json:"plannedAt"`
}

// HasWork reports whether executing the plan would change anything
func (p *DuplicatePlan) HasWork() bool {
	return len(p.Groups) > 0
}

// ArchivedIDs flattens the ingestion ids removed across all groups
func (p *DuplicatePlan) ArchivedIDs() []int64 {
	var ids []int64
	for _, g := range p.Groups {
		ids = append(ids, g.Archived...)
	}
	return ids
}

// ExecuteResult summarizes an applied plan
type ExecuteResult struct {
	Table       string                    `json:"table"`
	RowsRemoved int64                     `json:"rowsRemoved"`
	FinalRows   int64                     `json:"finalRows"`
	Backup      *warehouse.BackupSnapshot `json:"backup"`
}

// Resolver plans and executes duplicate elimination. Execution follows
// a fixed safety ladder: verified backup, rebuilt table, invariant
// verification, then an atomic swap. Any failure before the swap leaves
// the live table untouched.
type Resolver struct {
	store    *warehouse.Store
	registry *schema.Registry
	policy   *AuthorityPolicy
	logger   *zap.Logger
}

// NewResolver creates a resolver using the given authority policy
func NewResolver(store *warehouse.Store, registry *schema.Registry, policy *AuthorityPolicy, logger *zap.Logger) *Resolver {
	return &Resolver{
		store:    store,
		registry: registry,
		policy:   policy,
		logger:   logger.Named("resolve"),
	}
}

// Plan analyzes a table partition and returns the duplicate groups and
// their survivors. Plan is read-only.
func (r *Resolver) Plan(ctx context.Context, table string, part warehouse.Partition) (*DuplicatePlan, error) {
	records, err := r.store.SelectRecords(ctx, table, part)
	if err != nil {
		return nil, fmt.Errorf("failed to read records for duplicate analysis: %w", err)
	}

	// Records arrive ordered by ingest_id, so group membership order is
	// deterministic.
	byKey := make(map[model.NaturalKey][]model.EventRecord)
	var keyOrder []model.NaturalKey
	for _, rec := range records {
		key := rec.Key()
		if _, seen := byKey[key]; !seen {
			keyOrder = append(keyOrder, key)
		}
		byKey[key] = append(byKey[key], rec)
	}

	plan := &DuplicatePlan{
		Table:     table,
		Partition: part.String(),
		TotalRows: int64(len(records)),
		PlannedAt: time.Now().UTC(),
	}

	for _, key := range keyOrder {
		group := byKey[key]
		if len(group) < 2 {
			continue
		}

		survivor := group[0]
		for i := 1; i < len(group); i++ {
			if r.policy.Outranks(&group[i], &survivor) {
				survivor = group[i]
			}
		}

		dg := DuplicateGroup{
			Key:      key,
			Rows:     len(group),
			Survivor: survivor,
		}
		for _, rec := range group {
			if rec.IngestID != survivor.IngestID {
				dg.Archived = append(dg.Archived, rec.IngestID)
				dg.Losers = append(dg.Losers, rec)
			}
		}
		dg.Rationale = fmt.Sprintf(
			"status %s (class %d), effective date %s, completeness %d, ingest_id %d outranks %d other capture(s)",
			survivor.StatusCode, r.policy.Class(survivor.StatusCode),
			survivor.GameDate, r.policy.Score(&survivor),
			survivor.IngestID, len(dg.Archived))

		plan.Groups = append(plan.Groups, dg)
		plan.DuplicateRows += int64(len(dg.Archived))
	}

	r.logger.Info("Planned duplicate resolution",
		zap.String("table", table),
		zap.String("partition", part.String()),
		zap.Int64("totalRows", plan.TotalRows),
		zap.Int("duplicateKeys", len(plan.Groups)),
		zap.Int64("duplicateRows", plan.DuplicateRows))

	return plan, nil
}

// Execute applies a plan. The live table is backed up and the backup
// verified before any mutation; the deduplicated replacement is built
// alongside the live table, verified against the plan's invariants, and
// swapped in atomically. Executing an empty plan is a no-op.
func (r *Resolver) Execute(ctx context.Context, plan *DuplicatePlan) (*ExecuteResult, error) {
	if !plan.HasWork() {
		r.logger.Info("No duplicates to resolve", zap.String("table", plan.Table))
		finalRows, err := r.store.RowCount(ctx, plan.Table, warehouse.Partition{})
		if err != nil {
			return nil, err
		}
		return &ExecuteResult{Table: plan.Table, FinalRows: finalRows}, nil
	}

	ts, err := r.registry.Lookup(plan.Table)
	if err != nil {
		return nil, err
	}

	backup, err := r.store.CreateSnapshot(ctx, plan.Table)
	if err != nil {
		return nil, fmt.Errorf("aborting before any mutation: %w", err)
	}

	var typesBefore []string
	if ts.CategoryField != "" {
		typesBefore, err = r.store.DistinctStrings(ctx, plan.Table, ts.CategoryField)
		if err != nil {
			return nil, err
		}
	}

	// Rebuild alongside the live table with the full DDL so the
	// replacement keeps its autoincrementing identity.
	dedupTable := plan.Table + "_deduped"
	if err := r.store.DropTable(ctx, dedupTable); err != nil {
		return nil, err
	}
	if err := r.store.CreateEventTable(ctx, ts, dedupTable); err != nil {
		return nil, err
	}
	if err := r.store.CopyRowsExcept(ctx, plan.Table, dedupTable, plan.ArchivedIDs()); err != nil {
		return nil, err
	}

	if err := r.verify(ctx, plan, ts, dedupTable, typesBefore); err != nil {
		// Verification failed; keep the live table, drop the bad build.
		if dropErr := r.store.DropTable(ctx, dedupTable); dropErr != nil {
			r.logger.Error("Failed to drop rejected deduplication table",
				zap.String("table", dedupTable), zap.Error(dropErr))
		}
		return nil, err
	}

	if err := r.store.SwapTables(ctx, plan.Table, dedupTable); err != nil {
		return nil, err
	}

	finalRows, err := r.store.RowCount(ctx, plan.Table, warehouse.Partition{})
	if err != nil {
		return nil, err
	}

	r.logger.Info("Resolved duplicates",
		zap.String("table", plan.Table),
		zap.Int64("rowsRemoved", plan.DuplicateRows),
		zap.Int64("finalRows", finalRows),
		zap.String("backup", backup.BackupTable))

	return &ExecuteResult{
		Table:       plan.Table,
		RowsRemoved: plan.DuplicateRows,
		FinalRows:   finalRows,
		Backup:      backup,
	}, nil
}

// verify checks the rebuilt table against the plan's invariants before
// it is allowed to replace the live table
func (r *Resolver) verify(ctx context.Context, plan *DuplicatePlan, ts *schema.TableSchema, dedupTable string, typesBefore []string) error {
	liveRows, err := r.store.RowCount(ctx, plan.Table, warehouse.Partition{})
	if err != nil {
		return err
	}

	dedupRows, err := r.store.RowCount(ctx, dedupTable, warehouse.Partition{})
	if err != nil {
		return err
	}

	expected := liveRows - plan.DuplicateRows
	if dedupRows != expected {
		return fmt.Errorf("deduplication verification failed: expected %d rows, built table has %d",
			expected, dedupRows)
	}
	if dedupRows > liveRows {
		return fmt.Errorf("deduplication verification failed: built table grew from %d to %d rows",
			liveRows, dedupRows)
	}

	if ts.CategoryField == "" {
		return nil
	}

	typesAfter, err := r.store.DistinctStrings(ctx, dedupTable, ts.CategoryField)
	if err != nil {
		return err
	}
	if len(typesAfter) != len(typesBefore) {
		return fmt.Errorf("deduplication verification failed: %s value count changed from %d to %d",
			ts.CategoryField, len(typesBefore), len(typesAfter))
	}
	for i := range typesBefore {
		if typesAfter[i] != typesBefore[i] {
			return fmt.Errorf("deduplication verification failed: %s value set changed", ts.CategoryField)
		}
	}

	return nil
}
