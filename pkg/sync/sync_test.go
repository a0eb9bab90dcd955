// pkg/sync/sync_test.go
package sync

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
	"github.com/elijahcraig45/hanks-tank-data/pkg/resolve"
	"github.com/elijahcraig45/hanks-tank-data/pkg/schema"
	"github.com/elijahcraig45/hanks-tank-data/pkg/warehouse"
)

func newTestEngine(t *testing.T) (*Engine, *warehouse.Store) {
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

	engine := NewEngine(store, resolve.DefaultPolicy(), zap.NewNop())
	engine.WithClock(func() time.Time {
		return time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	})
	return engine, store
}

func seedOne(t *testing.T, store *warehouse.Store, rec model.EventRecord) {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return store.InsertRecord(ctx, tx, "games", &rec)
	}))
}

func raw(id int64, status, date string, fields map[string]interface{}) model.RawRecord {
	rec := model.RawRecord{
		"game_id":     id,
		"game_type":   "R",
		"season":      int64(2026),
		"game_date":   date,
		"status_code": status,
	}
	for k, v := range fields {
		rec[k] = v
	}
	return rec
}

func TestSyncInsertsNewRecords(t *testing.T) {
	t.Parallel()

	engine, store := newTestEngine(t)
	ctx := context.Background()

	batch := []model.RawRecord{
		raw(100, "F", "2026-08-20", map[string]interface{}{"home_score": 5, "away_score": 3}),
		raw(200, "DS", "2026-08-25", nil),
	}

	result, err := engine.Sync(ctx, "games", batch)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Received)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 0, result.Skipped)
	assert.Empty(t, result.Errors)

	total, err := store.RowCount(ctx, "games", warehouse.Partition{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestSyncReplacesWhenIncomingOutranks(t *testing.T) {
	t.Parallel()

	engine, store := newTestEngine(t)
	ctx := context.Background()

	// Scheduled placeholder first, then the final result arrives.
	_, err := engine.Sync(ctx, "games", []model.RawRecord{raw(100, "DS", "2026-08-20", nil)})
	require.NoError(t, err)

	result, err := engine.Sync(ctx, "games", []model.RawRecord{
		raw(100, "F", "2026-08-20", map[string]interface{}{"home_score": 5, "away_score": 3}),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 0, result.Inserted)

	rows, err := store.SelectByKey(ctx, "games", model.NaturalKey{GameID: 100, GameType: "R"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "F", rows[0].StatusCode)
	require.NotNil(t, rows[0].HomeScore)
	assert.Equal(t, int64(5), *rows[0].HomeScore)
}

func TestSyncSkipsWhenStoredOutranks(t *testing.T) {
	t.Parallel()

	engine, store := newTestEngine(t)
	ctx := context.Background()

	// Final result stored, then a stale placeholder replays.
	_, err := engine.Sync(ctx, "games", []model.RawRecord{
		raw(100, "F", "2026-08-20", map[string]interface{}{"home_score": 5, "away_score": 3}),
	})
	require.NoError(t, err)

	result, err := engine.Sync(ctx, "games", []model.RawRecord{raw(100, "DS", "2026-08-20", nil)})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Updated)

	rows, err := store.SelectByKey(ctx, "games", model.NaturalKey{GameID: 100, GameType: "R"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "F", rows[0].StatusCode)
}

func TestSyncIsIdempotent(t *testing.T) {
	t.Parallel()

	engine, store := newTestEngine(t)
	ctx := context.Background()

	batch := []model.RawRecord{
		raw(100, "F", "2026-08-20", map[string]interface{}{"home_score": 5, "away_score": 3}),
		raw(200, "I", "2026-08-23", map[string]interface{}{"home_score": 2}),
		raw(300, "DS", "2026-08-25", nil),
	}

	first, err := engine.Sync(ctx, "games", batch)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Inserted)

	second, err := engine.Sync(ctx, "games", batch)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 3, second.Skipped)

	total, err := store.RowCount(ctx, "games", warehouse.Partition{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestSyncIsolatesMalformedRecords(t *testing.T) {
	t.Parallel()

	engine, store := newTestEngine(t)
	ctx := context.Background()

	batch := []model.RawRecord{
		raw(100, "F", "2026-08-20", map[string]interface{}{"home_score": 5}),
		{"game_type": "R", "status_code": "F"},        // no game_id
		{"game_id": "garbage", "game_type": "R", "status_code": "F"}, // bad game_id
		raw(200, "DS", "2026-08-25", nil),
	}

	result, err := engine.Sync(ctx, "games", batch)
	require.NoError(t, err)

	assert.Equal(t, 4, result.Received)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 2, result.Failed())

	indices := []int{result.Errors[0].Index, result.Errors[1].Index}
	assert.ElementsMatch(t, []int{1, 2}, indices)

	total, err := store.RowCount(ctx, "games", warehouse.Partition{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestSyncCollapsesStoredDuplicates(t *testing.T) {
	t.Parallel()

	engine, store := newTestEngine(t)
	ctx := context.Background()

	// Two stored rows for the key; an outranking update replaces both.
	_, err := engine.Sync(ctx, "games", []model.RawRecord{raw(100, "DS", "2026-08-19", nil)})
	require.NoError(t, err)
	_, err = engine.Sync(ctx, "games", []model.RawRecord{raw(100, "I", "2026-08-20", nil)})
	require.NoError(t, err)

	// Force a second physical row behind the engine's back.
	dup, err := model.CoerceRecord(raw(100, "DS", "2026-08-19", nil), time.Now())
	require.NoError(t, err)
	seedOne(t, store, dup)

	result, err := engine.Sync(ctx, "games", []model.RawRecord{
		raw(100, "F", "2026-08-20", map[string]interface{}{"home_score": 5, "away_score": 3}),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)

	rows, err := store.SelectByKey(ctx, "games", model.NaturalKey{GameID: 100, GameType: "R"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "F", rows[0].StatusCode)
}
