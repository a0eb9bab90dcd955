// pkg/validate/engine.go
package validate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/elijahcraig45/hanks-tank-data/pkg/schema"
	"github.com/elijahcraig45/hanks-tank-data/pkg/warehouse"
)

// Engine runs the registered quality checks against warehouse tables.
// Each rule runs in isolation: a rule that fails to execute produces a
// CRITICAL result carrying the error, and the remaining rules still
// run. Validation never mutates the warehouse.
type Engine struct {
	store    *warehouse.Store
	registry *schema.Registry
	logger   *zap.Logger
	now      func() time.Time
}

// NewEngine creates a validation engine over the given store and schema
// registry
func NewEngine(store *warehouse.Store, registry *schema.Registry, logger *zap.Logger) *Engine {
	return &Engine{
		store:    store,
		registry: registry,
		logger:   logger.Named("validate"),
		now:      time.Now,
	}
}

// WithClock overrides the engine's clock, used by freshness checks
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Validate runs every applicable rule for one table partition and
// returns one result per rule. Only context cancellation and unknown
// tables surface as errors; rule failures are results.
func (e *Engine) Validate(ctx context.Context, table string, part warehouse.Partition) ([]Result, error) {
	ts, err := e.registry.Lookup(table)
	if err != nil {
		return nil, err
	}

	e.logger.Info("Validating table",
		zap.String("table", table),
		zap.String("partition", part.String()))

	exists, err := e.store.TableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return e.stamp([]Result{{
			Rule:      RuleSchema,
			Table:     table,
			Partition: part.String(),
			Severity:  SeverityCritical,
			Message:   "table does not exist in the warehouse",
		}}), nil
	}

	total, err := e.store.RowCount(ctx, table, part)
	if err != nil {
		return nil, fmt.Errorf("failed to count rows for validation: %w", err)
	}

	// An empty partition has nothing to violate; report a clean pass
	// with an explicit note rather than silently emitting zero results.
	if total == 0 {
		return e.stamp([]Result{{
			Rule:      RuleCompleteness,
			Table:     table,
			Partition: part.String(),
			Severity:  SeverityPass,
			Message:   "partition is empty; nothing to validate",
		}}), nil
	}

	var results []Result
	results = append(results, e.checkSchema(ctx, ts, part))
	results = append(results, e.checkCompleteness(ctx, ts, part, total)...)
	results = append(results, e.checkUniqueness(ctx, ts, part, total))
	results = append(results, e.checkRanges(ctx, ts, part, total)...)
	if ts.MaxAgeDays > 0 {
		results = append(results, e.checkFreshness(ctx, ts, part, total))
	}

	results = e.stamp(results)

	worst := WorstSeverity(results)
	e.logger.Info("Validation finished",
		zap.String("table", table),
		zap.String("partition", part.String()),
		zap.Int("checks", len(results)),
		zap.String("status", worst.String()))

	return results, nil
}

// ValidateAll validates every registered table over its full contents
func (e *Engine) ValidateAll(ctx context.Context) ([]Result, error) {
	var results []Result
	for _, table := range e.registry.Tables() {
		rs, err := e.Validate(ctx, table, warehouse.Partition{})
		if err != nil {
			return nil, err
		}
		results = append(results, rs...)
	}
	return results, nil
}

func (e *Engine) checkSchema(ctx context.Context, ts *schema.TableSchema, part warehouse.Partition) Result {
	result := Result{
		Rule:      RuleSchema,
		Table:     ts.Name,
		Partition: part.String(),
	}

	live, err := e.store.Columns(ctx, ts.Name)
	if err != nil {
		return ruleError(result, err)
	}

	liveSet := make(map[string]bool, len(live))
	for _, name := range live {
		liveSet[strings.ToLower(name)] = true
	}

	var missing []string
	for _, name := range ts.ColumnNames() {
		if !liveSet[strings.ToLower(name)] {
			missing = append(missing, name)
		}
	}

	var extra []string
	for _, name := range live {
		if name != "ingest_id" && !ts.HasColumn(name) {
			extra = append(extra, name)
		}
	}

	switch {
	case len(missing) > 0:
		result.Severity = SeverityCritical
		result.Message = fmt.Sprintf("missing declared columns: %s", strings.Join(missing, ", "))
		result.ActualValue = int64(len(missing))
	case len(extra) > 0:
		result.Severity = SeverityWarning
		result.Message = fmt.Sprintf("undeclared columns present: %s", strings.Join(extra, ", "))
		result.ActualValue = int64(len(extra))
	default:
		result.Severity = SeverityPass
		result.Message = fmt.Sprintf("all %d declared columns present", len(ts.Columns))
	}

	return result
}

func (e *Engine) checkCompleteness(ctx context.Context, ts *schema.TableSchema, part warehouse.Partition, total int64) []Result {
	required := ts.RequiredFields()
	results := make([]Result, 0, len(required))

	for _, field := range required {
		result := Result{
			Rule:      RuleCompleteness,
			Table:     ts.Name,
			Partition: part.String(),
			Field:     field,
			TotalRows: total,
		}

		nulls, err := e.store.NullCount(ctx, ts.Name, field, part)
		if err != nil {
			results = append(results, ruleError(result, err))
			continue
		}

		result.ActualValue = nulls
		if nulls > 0 {
			result.Severity = SeverityCritical
			result.Message = fmt.Sprintf("%d of %d rows have NULL %s", nulls, total, field)
		} else {
			result.Severity = SeverityPass
			result.Message = fmt.Sprintf("no NULLs in %s", field)
		}
		results = append(results, result)
	}

	return results
}

func (e *Engine) checkUniqueness(ctx context.Context, ts *schema.TableSchema, part warehouse.Partition, total int64) Result {
	result := Result{
		Rule:      RuleUniqueness,
		Table:     ts.Name,
		Partition: part.String(),
		Field:     strings.Join(ts.NaturalKey, "+"),
		TotalRows: total,
	}

	distinct, err := e.store.DistinctKeyCount(ctx, ts.Name, ts.NaturalKey, part)
	if err != nil {
		return ruleError(result, err)
	}

	duplicates := total - distinct
	result.ActualValue = duplicates
	if duplicates > 0 {
		result.Severity = SeverityCritical
		result.Message = fmt.Sprintf("%d duplicate rows across %d natural keys", duplicates, distinct)
	} else {
		result.Severity = SeverityPass
		result.Message = fmt.Sprintf("all %d rows have unique natural keys", total)
	}
	return result
}

func (e *Engine) checkRanges(ctx context.Context, ts *schema.TableSchema, part warehouse.Partition, total int64) []Result {
	results := make([]Result, 0, len(ts.Ranges))

	for _, spec := range ts.Ranges {
		result := Result{
			Rule:      RuleRange,
			Table:     ts.Name,
			Partition: part.String(),
			Field:     spec.Field,
			TotalRows: total,
		}

		bad, err := e.store.OutOfRangeCount(ctx, ts.Name, spec.Field, spec.Min, spec.Max, part)
		if err != nil {
			results = append(results, ruleError(result, err))
			continue
		}

		result.ActualValue = bad
		switch {
		case bad == 0:
			result.Severity = SeverityPass
			result.Message = fmt.Sprintf("all %s values within [%g, %g]", spec.Field, spec.Min, spec.Max)
		case spec.Critical:
			result.Severity = SeverityCritical
			result.Message = fmt.Sprintf("%d rows have %s outside [%g, %g]", bad, spec.Field, spec.Min, spec.Max)
		default:
			result.Severity = SeverityWarning
			result.Message = fmt.Sprintf("%d rows have %s outside [%g, %g]", bad, spec.Field, spec.Min, spec.Max)
		}
		results = append(results, result)
	}

	return results
}

func (e *Engine) checkFreshness(ctx context.Context, ts *schema.TableSchema, part warehouse.Partition, total int64) Result {
	result := Result{
		Rule:      RuleFreshness,
		Table:     ts.Name,
		Partition: part.String(),
		Field:     ts.DateField,
		TotalRows: total,
	}

	maxDate, ok, err := e.store.MaxDate(ctx, ts.Name, ts.DateField, part)
	if err != nil {
		return ruleError(result, err)
	}
	if !ok {
		result.Severity = SeverityWarning
		result.Message = fmt.Sprintf("no dated rows in %s", ts.DateField)
		return result
	}

	latest, err := time.Parse("2006-01-02", maxDate)
	if err != nil {
		result.Severity = SeverityWarning
		result.Message = fmt.Sprintf("latest %s value %q is not a date", ts.DateField, maxDate)
		return result
	}

	ageDays := int(e.now().UTC().Sub(latest).Hours() / 24)
	result.ActualValue = int64(ageDays)
	if ageDays > ts.MaxAgeDays {
		result.Severity = SeverityWarning
		result.Message = fmt.Sprintf("latest %s is %s (%d days old, ceiling %d)",
			ts.DateField, maxDate, ageDays, ts.MaxAgeDays)
	} else {
		result.Severity = SeverityPass
		result.Message = fmt.Sprintf("latest %s is %s (%d days old)", ts.DateField, maxDate, ageDays)
	}
	return result
}

// CheckSchema runs only the structural check for a table. Loaders call
// it before writing: a critical mismatch blocks the batch.
func (e *Engine) CheckSchema(ctx context.Context, table string) (Result, error) {
	ts, err := e.registry.Lookup(table)
	if err != nil {
		return Result{}, err
	}
	result := e.checkSchema(ctx, ts, warehouse.Partition{})
	result.Timestamp = e.timestamp()
	return result, nil
}

// CheckContinuity reports gaps in the partition history as one result:
// WARNING when values are missing between the observed minimum and
// maximum, PASS when the history is contiguous. Tables without a
// partition field produce no result.
func (e *Engine) CheckContinuity(ctx context.Context, table string) (*Result, error) {
	ts, err := e.registry.Lookup(table)
	if err != nil {
		return nil, err
	}
	if ts.PartitionField == "" {
		return nil, nil
	}

	missing, err := e.MissingPartitions(ctx, table)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Rule:        RuleCompleteness,
		Table:       table,
		Partition:   warehouse.Partition{}.String(),
		Field:       ts.PartitionField,
		ActualValue: int64(len(missing)),
		Timestamp:   e.timestamp(),
	}
	if len(missing) > 0 {
		result.Severity = SeverityWarning
		result.Message = fmt.Sprintf("%d missing %s value(s): %v", len(missing), ts.PartitionField, missing)
	} else {
		result.Severity = SeverityPass
		result.Message = fmt.Sprintf("%s history is contiguous", ts.PartitionField)
	}
	return result, nil
}

// MissingPartitions reports gaps in the observed partition values
// between their minimum and maximum, e.g. seasons absent from an
// otherwise contiguous history.
func (e *Engine) MissingPartitions(ctx context.Context, table string) ([]int64, error) {
	ts, err := e.registry.Lookup(table)
	if err != nil {
		return nil, err
	}
	if ts.PartitionField == "" {
		return nil, nil
	}

	observed, err := e.store.DistinctPartitions(ctx, table, ts.PartitionField)
	if err != nil {
		return nil, err
	}
	if len(observed) < 2 {
		return nil, nil
	}

	present := make(map[int64]bool, len(observed))
	for _, v := range observed {
		present[v] = true
	}

	var missing []int64
	for v := observed[0]; v <= observed[len(observed)-1]; v++ {
		if !present[v] {
			missing = append(missing, v)
		}
	}
	return missing, nil
}

// timestamp formats the engine clock for result records
func (e *Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// stamp records the evaluation time on every result
func (e *Engine) stamp(results []Result) []Result {
	ts := e.timestamp()
	for i := range results {
		results[i].Timestamp = ts
	}
	return results
}

// ruleError converts a rule execution failure into a CRITICAL result so
// one broken check cannot hide the others
func ruleError(result Result, err error) Result {
	result.Severity = SeverityCritical
	result.Message = fmt.Sprintf("check failed to execute: %v", err)
	return result
}
