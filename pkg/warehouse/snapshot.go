// pkg/warehouse/snapshot.go
package warehouse

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/elijahcraig45/hanks-tank-data/pkg/schema"
)

// BackupSnapshot records a full copy of a table taken before a
// destructive operation. The copy lives in the same warehouse under a
// timestamped name and survives until explicitly dropped.
type BackupSnapshot struct {
	SourceTable string    `json:"sourceTable"`
	BackupTable string    `json:"backupTable"`
	RowCount    int64     `json:"rowCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CreateSnapshot copies a table into a timestamped backup table and
// verifies the copy holds exactly as many rows as the source. Callers
// must treat any error as a hard stop: no mutation may proceed without
// a verified snapshot.
func (s *Store) CreateSnapshot(ctx context.Context, table string) (*BackupSnapshot, error) {
	now := s.now().UTC()
	backupTable := fmt.Sprintf("%s_backup_%s", table, now.Format("20060102_150405"))

	sourceCount, err := s.RowCount(ctx, table, Partition{})
	if err != nil {
		return nil, fmt.Errorf("failed to count source rows before backup: %w", err)
	}

	if err := s.CreateTableAsSelect(ctx, backupTable,
		fmt.Sprintf("SELECT * FROM %s", table)); err != nil {
		return nil, fmt.Errorf("failed to create backup of %s: %w", table, err)
	}

	backupCount, err := s.RowCount(ctx, backupTable, Partition{})
	if err != nil {
		return nil, fmt.Errorf("failed to verify backup %s: %w", backupTable, err)
	}

	if backupCount != sourceCount {
		// Leave the bad copy in place for inspection; the caller aborts.
		return nil, fmt.Errorf("backup verification failed for %s: source has %d rows, backup %s has %d",
			table, sourceCount, backupTable, backupCount)
	}

	s.logger.Info("Created verified backup",
		zap.String("table", table),
		zap.String("backup", backupTable),
		zap.Int64("rows", backupCount))

	return &BackupSnapshot{
		SourceTable: table,
		BackupTable: backupTable,
		RowCount:    backupCount,
		CreatedAt:   now,
	}, nil
}

// RestoreSnapshot replaces the live table with the contents of a
// snapshot. The snapshot table itself is preserved.
func (s *Store) RestoreSnapshot(ctx context.Context, ts *schema.TableSchema, snap *BackupSnapshot) error {
	exists, err := s.TableExists(ctx, snap.BackupTable)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("backup table %s no longer exists", snap.BackupTable)
	}

	restoreTable := snap.SourceTable + "_restore"
	if err := s.DropTable(ctx, restoreTable); err != nil {
		return err
	}
	if err := s.CreateEventTable(ctx, ts, restoreTable); err != nil {
		return err
	}
	if err := s.CopyRowsExcept(ctx, snap.BackupTable, restoreTable, nil); err != nil {
		return fmt.Errorf("failed to stage restore of %s: %w", snap.SourceTable, err)
	}

	if err := s.SwapTables(ctx, snap.SourceTable, restoreTable); err != nil {
		return fmt.Errorf("failed to restore %s from %s: %w", snap.SourceTable, snap.BackupTable, err)
	}

	s.logger.Warn("Restored table from backup",
		zap.String("table", snap.SourceTable),
		zap.String("backup", snap.BackupTable),
		zap.Int64("rows", snap.RowCount))

	return nil
}
