// pkg/warehouse/store_test.go
package warehouse

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elijahcraig45/hanks-tank-data/pkg/config"
	"github.com/elijahcraig45/hanks-tank-data/pkg/connector"
	"github.com/elijahcraig45/hanks-tank-data/pkg/model"
	"github.com/elijahcraig45/hanks-tank-data/pkg/schema"
)

func i64(v int64) *int64 { return &v }

func newTestStore(t *testing.T) *Store {
	t.Helper()

	cfg := &config.WarehouseConfig{
		Driver: "sqlite3",
		Path:   filepath.Join(t.TempDir(), "warehouse.db"),
	}
	conn, err := connector.NewSQLiteConnector(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	store := NewStore(conn, zap.NewNop())
	require.NoError(t, store.EnsureEventTable(context.Background(), schema.GamesTable()))
	return store
}

func seed(t *testing.T, store *Store, recs ...model.EventRecord) {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, store.WithTx(ctx, func(tx *sqlx.Tx) error {
		for i := range recs {
			if err := store.InsertRecord(ctx, tx, "games", &recs[i]); err != nil {
				return err
			}
		}
		return nil
	}))
}

func game(id int64, gameType, date, status string) model.EventRecord {
	return model.EventRecord{
		GameID:     id,
		GameType:   gameType,
		Season:     2026,
		GameDate:   date,
		StatusCode: status,
		HomeScore:  i64(4),
		AwayScore:  i64(2),
		IngestedAt: "2026-08-23T00:00:00Z",
	}
}

func TestEnsureEventTableIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnsureEventTable(ctx, schema.GamesTable()))

	exists, err := store.TableExists(ctx, "games")
	require.NoError(t, err)
	assert.True(t, exists)

	columns, err := store.Columns(ctx, "games")
	require.NoError(t, err)
	assert.Contains(t, columns, "ingest_id")
	assert.Contains(t, columns, "game_id")
	assert.Contains(t, columns, "ingested_at")
	assert.Len(t, columns, len(schema.GamesTable().Columns)+1)
}

func TestCountsAndPartitions(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	g2025 := game(1, "R", "2025-09-01", "F")
	g2025.Season = 2025
	noScore := game(3, "R", "2026-08-25", "DS")
	noScore.HomeScore = nil
	noScore.AwayScore = nil

	seed(t, store,
		g2025,
		game(2, "R", "2026-08-20", "F"),
		noScore,
		game(2, "R", "2026-08-20", "F"), // duplicate key
	)

	total, err := store.RowCount(ctx, "games", Partition{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)

	scoped, err := store.RowCount(ctx, "games", Partition{Field: "season", Value: 2026})
	require.NoError(t, err)
	assert.Equal(t, int64(3), scoped)

	nulls, err := store.NullCount(ctx, "games", "home_score", Partition{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), nulls)

	distinct, err := store.DistinctKeyCount(ctx, "games", []string{"game_id", "game_type"}, Partition{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), distinct)

	parts, err := store.DistinctPartitions(ctx, "games", "season")
	require.NoError(t, err)
	assert.Equal(t, []int64{2025, 2026}, parts)

	maxDate, ok, err := store.MaxDate(ctx, "games", "game_date", Partition{Field: "season", Value: 2026})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2026-08-25", maxDate)
}

func TestOutOfRangeCount(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	high := game(1, "R", "2026-08-20", "F")
	high.HomeScore = i64(50)
	null := game(2, "R", "2026-08-21", "DS")
	null.HomeScore = nil

	seed(t, store, high, null, game(3, "R", "2026-08-22", "F"))

	bad, err := store.OutOfRangeCount(ctx, "games", "home_score", 0, 35, Partition{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), bad)
}

func TestSelectByKeyOrdersByIngestID(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	seed(t, store,
		game(100, "R", "2026-08-20", "DS"),
		game(100, "R", "2026-08-20", "F"),
		game(200, "R", "2026-08-21", "F"),
	)

	rows, err := store.SelectByKey(ctx, "games", model.NaturalKey{GameID: 100, GameType: "R"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0].IngestID)
	assert.Equal(t, int64(2), rows[1].IngestID)
	assert.Equal(t, "DS", rows[0].StatusCode)
}

func TestReplaceRecordCollapsesKey(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	seed(t, store,
		game(100, "R", "2026-08-20", "DS"),
		game(100, "R", "2026-08-20", "I"),
	)

	final := game(100, "R", "2026-08-20", "F")
	require.NoError(t, store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return store.ReplaceRecord(ctx, tx, "games", &final)
	}))

	rows, err := store.SelectByKey(ctx, "games", model.NaturalKey{GameID: 100, GameType: "R"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "F", rows[0].StatusCode)
}

func TestSnapshotCreateAndRestore(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	ts := schema.GamesTable()

	seed(t, store, game(100, "R", "2026-08-20", "F"), game(200, "R", "2026-08-21", "F"))

	snap, err := store.CreateSnapshot(ctx, "games")
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.RowCount)
	assert.Equal(t, "games", snap.SourceTable)

	// Damage the live table, then restore.
	require.NoError(t, store.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM games")
		return err
	}))
	total, err := store.RowCount(ctx, "games", Partition{})
	require.NoError(t, err)
	require.Equal(t, int64(0), total)

	require.NoError(t, store.RestoreSnapshot(ctx, ts, snap))

	total, err = store.RowCount(ctx, "games", Partition{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	// The restored table stays writable with fresh identities.
	next := game(300, "R", "2026-08-22", "F")
	require.NoError(t, store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return store.InsertRecord(ctx, tx, "games", &next)
	}))
	rows, err := store.SelectByKey(ctx, "games", model.NaturalKey{GameID: 300, GameType: "R"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Greater(t, rows[0].IngestID, int64(0))
}

func TestRestoreSnapshotMissingBackup(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	err := store.RestoreSnapshot(ctx, schema.GamesTable(), &BackupSnapshot{
		SourceTable: "games",
		BackupTable: "games_backup_gone",
	})
	assert.Error(t, err)
}

func TestSwapTables(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	ts := schema.GamesTable()

	seed(t, store, game(100, "R", "2026-08-20", "F"))

	require.NoError(t, store.CreateEventTable(ctx, ts, "games_next"))
	require.NoError(t, store.CopyRowsExcept(ctx, "games", "games_next", nil))
	next := game(200, "R", "2026-08-21", "F")
	require.NoError(t, store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return store.InsertRecord(ctx, tx, "games_next", &next)
	}))

	require.NoError(t, store.SwapTables(ctx, "games", "games_next"))

	total, err := store.RowCount(ctx, "games", Partition{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	exists, err := store.TableExists(ctx, "games_next")
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = store.TableExists(ctx, "games_retired")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCheckpoints(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnsureCheckpointTable(ctx))
	require.NoError(t, store.EnsureCheckpointTable(ctx)) // idempotent

	done, err := store.IsCheckpointComplete(ctx, "games", "2026")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, store.SaveCheckpoint(ctx, "games", "2026", CheckpointIncomplete, "retries exhausted"))
	done, err = store.IsCheckpointComplete(ctx, "games", "2026")
	require.NoError(t, err)
	assert.False(t, done)

	// Upsert flips the same unit of work to complete.
	require.NoError(t, store.SaveCheckpoint(ctx, "games", "2026", CheckpointComplete, "inserted=12"))
	done, err = store.IsCheckpointComplete(ctx, "games", "2026")
	require.NoError(t, err)
	assert.True(t, done)

	cp, err := store.LookupCheckpoint(ctx, "games", "2026")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, CheckpointComplete, cp.Status)
	assert.Equal(t, "inserted=12", cp.Detail)

	require.NoError(t, store.ClearCheckpoints(ctx, "games"))
	cp, err = store.LookupCheckpoint(ctx, "games", "2026")
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestPartitionString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "all", Partition{}.String())
	assert.Equal(t, "season=2026", Partition{Field: "season", Value: 2026}.String())
}
