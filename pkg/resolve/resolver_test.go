// pkg/resolve/resolver_test.go
package resolve

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elijahcraig45/hanks-tank-data/pkg/config"
	"github.com/elijahcraig45/hanks-tank-data/pkg/connector"
	"github.com/elijahcraig45/hanks-tank-data/pkg/model"
	"github.com/elijahcraig45/hanks-tank-data/pkg/schema"
	"github.com/elijahcraig45/hanks-tank-data/pkg/warehouse"
)

func newTestStore(t *testing.T) *warehouse.Store {
	t.Helper()

	cfg := &config.WarehouseConfig{
		Driver: "sqlite3",
		Path:   filepath.Join(t.TempDir(), "warehouse.db"),
	}
	conn, err := connector.NewSQLiteConnector(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	store := warehouse.NewStore(conn, zap.NewNop())
	require.NoError(t, store.EnsureEventTable(context.Background(), schema.GamesTable()))
	return store
}

func seed(t *testing.T, store *warehouse.Store, recs ...model.EventRecord) {
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

func game(id int64, gameType string, date, status string, home, away *int64) model.EventRecord {
	return model.EventRecord{
		GameID:     id,
		GameType:   gameType,
		Season:     2026,
		GameDate:   date,
		StatusCode: status,
		HomeScore:  home,
		AwayScore:  away,
		IngestedAt: "2026-08-23T00:00:00Z",
	}
}

func newTestResolver(t *testing.T) (*Resolver, *warehouse.Store) {
	t.Helper()
	store := newTestStore(t)
	return NewResolver(store, schema.DefaultRegistry(), DefaultPolicy(), zap.NewNop()), store
}

func TestPlanPicksAuthoritativeSurvivor(t *testing.T) {
	t.Parallel()

	resolver, store := newTestResolver(t)
	ctx := context.Background()

	// Three captures of the same game across its lifecycle, plus one
	// game with no duplicates.
	seed(t, store,
		game(100, "R", "2026-08-20", "DS", nil, nil),         // ingest_id 1
		game(100, "R", "2026-08-20", "I", i64(2), nil),       // ingest_id 2
		game(100, "R", "2026-08-20", "F", i64(5), i64(3)),    // ingest_id 3
		game(200, "R", "2026-08-21", "F", i64(1), i64(0)),    // ingest_id 4
	)

	plan, err := resolver.Plan(ctx, "games", warehouse.Partition{})
	require.NoError(t, err)

	assert.True(t, plan.HasWork())
	assert.Equal(t, int64(4), plan.TotalRows)
	assert.Equal(t, int64(2), plan.DuplicateRows)
	require.Len(t, plan.Groups, 1)

	group := plan.Groups[0]
	assert.Equal(t, model.NaturalKey{GameID: 100, GameType: "R"}, group.Key)
	assert.Equal(t, 3, group.Rows)
	assert.Equal(t, "F", group.Survivor.StatusCode)
	assert.Equal(t, int64(3), group.Survivor.IngestID)
	assert.ElementsMatch(t, []int64{1, 2}, group.Archived)
}

func TestPlanKeepsTerminalOverLaterLive(t *testing.T) {
	t.Parallel()

	resolver, store := newTestResolver(t)
	ctx := context.Background()

	// A finished game must not be displaced by a later live capture.
	seed(t, store,
		game(300, "R", "2026-08-20", "F", i64(4), i64(2)), // ingest_id 1
		game(300, "R", "2026-08-22", "I", nil, nil),       // ingest_id 2
	)

	plan, err := resolver.Plan(ctx, "games", warehouse.Partition{})
	require.NoError(t, err)

	require.Len(t, plan.Groups, 1)
	assert.Equal(t, int64(1), plan.Groups[0].Survivor.IngestID)
	assert.Equal(t, []int64{2}, plan.Groups[0].Archived)
}

func TestPlanFullTieKeepsLowestIngestID(t *testing.T) {
	t.Parallel()

	resolver, store := newTestResolver(t)
	ctx := context.Background()

	seed(t, store,
		game(400, "R", "2026-08-20", "F", i64(2), i64(1)), // ingest_id 1
		game(400, "R", "2026-08-20", "F", i64(2), i64(1)), // ingest_id 2
	)

	plan, err := resolver.Plan(ctx, "games", warehouse.Partition{})
	require.NoError(t, err)

	require.Len(t, plan.Groups, 1)
	assert.Equal(t, int64(1), plan.Groups[0].Survivor.IngestID)
	assert.Equal(t, []int64{2}, plan.Groups[0].Archived)
}

func TestPlanIsIdempotent(t *testing.T) {
	t.Parallel()

	resolver, store := newTestResolver(t)
	ctx := context.Background()

	seed(t, store,
		game(100, "R", "2026-08-20", "DS", nil, nil),
		game(100, "R", "2026-08-20", "F", i64(5), i64(3)),
	)

	first, err := resolver.Plan(ctx, "games", warehouse.Partition{})
	require.NoError(t, err)
	second, err := resolver.Plan(ctx, "games", warehouse.Partition{})
	require.NoError(t, err)

	assert.Equal(t, first.Groups, second.Groups)
	assert.Equal(t, first.TotalRows, second.TotalRows)
	assert.Equal(t, first.DuplicateRows, second.DuplicateRows)
}

func TestPlanCleanTableHasNoWork(t *testing.T) {
	t.Parallel()

	resolver, store := newTestResolver(t)
	ctx := context.Background()

	seed(t, store,
		game(100, "R", "2026-08-20", "F", i64(5), i64(3)),
		game(100, "S", "2026-03-10", "F", i64(7), i64(6)), // same id, different type
	)

	plan, err := resolver.Plan(ctx, "games", warehouse.Partition{})
	require.NoError(t, err)

	assert.False(t, plan.HasWork())
	assert.Empty(t, plan.Groups)
}

func TestExecuteRemovesDuplicatesAtomically(t *testing.T) {
	t.Parallel()

	resolver, store := newTestResolver(t)
	ctx := context.Background()

	seed(t, store,
		game(100, "R", "2026-08-20", "DS", nil, nil),
		game(100, "R", "2026-08-20", "I", i64(2), nil),
		game(100, "R", "2026-08-20", "F", i64(5), i64(3)),
		game(200, "R", "2026-08-21", "F", i64(1), i64(0)),
		game(300, "S", "2026-03-10", "F", i64(7), i64(6)),
	)

	plan, err := resolver.Plan(ctx, "games", warehouse.Partition{})
	require.NoError(t, err)

	result, err := resolver.Execute(ctx, plan)
	require.NoError(t, err)

	assert.Equal(t, int64(2), result.RowsRemoved)
	assert.Equal(t, int64(3), result.FinalRows)
	require.NotNil(t, result.Backup)
	assert.Equal(t, int64(5), result.Backup.RowCount)

	// Backup preserves the pre-mutation state.
	exists, err := store.TableExists(ctx, result.Backup.BackupTable)
	require.NoError(t, err)
	assert.True(t, exists)

	// The live table has exactly one row per natural key.
	total, err := store.RowCount(ctx, "games", warehouse.Partition{})
	require.NoError(t, err)
	distinct, err := store.DistinctKeyCount(ctx, "games", []string{"game_id", "game_type"}, warehouse.Partition{})
	require.NoError(t, err)
	assert.Equal(t, total, distinct)

	// The survivor for the contested key is the terminal capture.
	rows, err := store.SelectByKey(ctx, "games", model.NaturalKey{GameID: 100, GameType: "R"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "F", rows[0].StatusCode)
	require.NotNil(t, rows[0].HomeScore)
	assert.Equal(t, int64(5), *rows[0].HomeScore)

	// Game types survive the rebuild.
	types, err := store.DistinctStrings(ctx, "games", "game_type")
	require.NoError(t, err)
	assert.Equal(t, []string{"R", "S"}, types)
}

func TestExecuteAbortsWhenBackupFails(t *testing.T) {
	t.Parallel()

	resolver, store := newTestResolver(t)
	ctx := context.Background()

	store.WithClock(func() time.Time {
		return time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	})

	seed(t, store,
		game(100, "R", "2026-08-20", "DS", nil, nil),
		game(100, "R", "2026-08-20", "F", i64(5), i64(3)),
	)

	// Occupy the backup name so the snapshot cannot be created.
	require.NoError(t, store.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, "CREATE TABLE games_backup_20260823_120000 (ingest_id BIGINT)")
		return err
	}))

	plan, err := resolver.Plan(ctx, "games", warehouse.Partition{})
	require.NoError(t, err)
	require.True(t, plan.HasWork())

	_, err = resolver.Execute(ctx, plan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aborting before any mutation")

	// The live table is untouched: both captures are still present.
	total, err := store.RowCount(ctx, "games", warehouse.Partition{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	// No rebuild was started either.
	exists, err := store.TableExists(ctx, "games_deduped")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestExecuteEmptyPlanIsNoOp(t *testing.T) {
	t.Parallel()

	resolver, store := newTestResolver(t)
	ctx := context.Background()

	seed(t, store, game(100, "R", "2026-08-20", "F", i64(5), i64(3)))

	plan, err := resolver.Plan(ctx, "games", warehouse.Partition{})
	require.NoError(t, err)

	result, err := resolver.Execute(ctx, plan)
	require.NoError(t, err)

	assert.Equal(t, int64(0), result.RowsRemoved)
	assert.Equal(t, int64(1), result.FinalRows)
	assert.Nil(t, result.Backup)
}

func TestExecuteThenReplanFindsNothing(t *testing.T) {
	t.Parallel()

	resolver, store := newTestResolver(t)
	ctx := context.Background()

	seed(t, store,
		game(100, "R", "2026-08-20", "DS", nil, nil),
		game(100, "R", "2026-08-20", "F", i64(5), i64(3)),
	)

	plan, err := resolver.Plan(ctx, "games", warehouse.Partition{})
	require.NoError(t, err)
	_, err = resolver.Execute(ctx, plan)
	require.NoError(t, err)

	replan, err := resolver.Plan(ctx, "games", warehouse.Partition{})
	require.NoError(t, err)
	assert.False(t, replan.HasWork())
}
