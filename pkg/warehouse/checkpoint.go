// pkg/warehouse/checkpoint.go
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Checkpoint statuses recorded per table/partition unit of work.
const (
	CheckpointComplete   = "complete"
	CheckpointIncomplete = "incomplete"
)

// Checkpoint marks the outcome of one pipeline unit of work so a rerun
// can skip what already finished.
type Checkpoint struct {
	TableName   string `db:"table_name"`
	Partition   string `db:"partition_key"`
	Status      string `db:"status"`
	Detail      string `db:"detail"`
	CompletedAt string `db:"completed_at"`
}

const checkpointTable = "reconcile_checkpoints"

// EnsureCheckpointTable creates the checkpoint bookkeeping table if it
// does not exist
func (s *Store) EnsureCheckpointTable(ctx context.Context) error {
	createSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		table_name TEXT NOT NULL,
		partition_key TEXT NOT NULL,
		status TEXT NOT NULL,
		detail TEXT,
		completed_at TEXT NOT NULL,
		PRIMARY KEY (table_name, partition_key)
	)`, checkpointTable)

	if _, err := s.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create checkpoint table: %w", err)
	}
	return nil
}

// SaveCheckpoint upserts the status of one unit of work
func (s *Store) SaveCheckpoint(ctx context.Context, table, partition, status, detail string) error {
	query := s.rebind(fmt.Sprintf(`INSERT INTO %s
		(table_name, partition_key, status, detail, completed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (table_name, partition_key)
		DO UPDATE SET status = excluded.status,
			detail = excluded.detail,
			completed_at = excluded.completed_at`, checkpointTable))

	completedAt := time.Now().UTC().Format(time.RFC3339)
	if _, err := s.db.ExecContext(ctx, query, table, partition, status, detail, completedAt); err != nil {
		return fmt.Errorf("failed to save checkpoint %s/%s: %w", table, partition, err)
	}

	s.logger.Debug("Saved checkpoint",
		zap.String("table", table),
		zap.String("partition", partition),
		zap.String("status", status))

	return nil
}

// LookupCheckpoint returns the recorded checkpoint for a unit of work,
// or nil when none exists
func (s *Store) LookupCheckpoint(ctx context.Context, table, partition string) (*Checkpoint, error) {
	query := s.rebind(fmt.Sprintf(
		`SELECT table_name, partition_key, status, detail, completed_at
		FROM %s WHERE table_name = ? AND partition_key = ?`, checkpointTable))

	var cp Checkpoint
	err := s.db.GetContext(ctx, &cp, query, table, partition)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up checkpoint %s/%s: %w", table, partition, err)
	}
	return &cp, nil
}

// IsCheckpointComplete reports whether a unit of work already finished
// successfully
func (s *Store) IsCheckpointComplete(ctx context.Context, table, partition string) (bool, error) {
	cp, err := s.LookupCheckpoint(ctx, table, partition)
	if err != nil {
		return false, err
	}
	return cp != nil && cp.Status == CheckpointComplete, nil
}

// ClearCheckpoints removes all checkpoints for a table, forcing the
// next pipeline run to reprocess every partition
func (s *Store) ClearCheckpoints(ctx context.Context, table string) error {
	query := s.rebind(fmt.Sprintf("DELETE FROM %s WHERE table_name = ?", checkpointTable))
	if _, err := s.db.ExecContext(ctx, query, table); err != nil {
		return fmt.Errorf("failed to clear checkpoints for %s: %w", table, err)
	}
	return nil
}
