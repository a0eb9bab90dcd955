// pkg/warehouse/store.go
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/elijahcraig45/hanks-tank-data/pkg/connector"
	"github.com/elijahcraig45/hanks-tank-data/pkg/model"
	"github.com/elijahcraig45/hanks-tank-data/pkg/schema"
)

// Partition scopes an operation to one slice of a table (e.g. one
// season). The zero value means the whole table.
type Partition struct {
	Field string
	Value interface{}
}

// IsZero reports whether the partition scopes nothing
func (p Partition) IsZero() bool {
	return p.Field == ""
}

// String formats the partition for logs and reports
func (p Partition) String() string {
	if p.IsZero() {
		return "all"
	}
	return fmt.Sprintf("%s=%v", p.Field, p.Value)
}

// Store executes warehouse-side SQL for validation, conflict
// resolution, and sync. All reads are plain queries; all mutations go
// through explicit transactions held by the callers that own them.
type Store struct {
	db     *sqlx.DB
	driver string
	logger *zap.Logger
	now    func() time.Time
}

// NewStore creates a store over the given warehouse connector
func NewStore(conn connector.DatabaseConnector, logger *zap.Logger) *Store {
	return &Store{
		db:     conn.DB(),
		driver: conn.DriverName(),
		logger: logger.Named("warehouse"),
		now:    time.Now,
	}
}

// WithClock overrides the clock that names backup snapshots
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// DB exposes the underlying handle for callers that manage their own
// transactions
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// rebind converts ?-style placeholders to the driver's bind style
func (s *Store) rebind(query string) string {
	return s.db.Rebind(query)
}

// where builds the partition filter clause and its arguments
func where(p Partition) (string, []interface{}) {
	if p.IsZero() {
		return "", nil
	}
	return fmt.Sprintf(" WHERE %s = ?", p.Field), []interface{}{p.Value}
}

// eventTableDDL builds the CREATE TABLE body for a registered schema.
// The ingest_id column is the warehouse-assigned row identity used as
// the resolver's last-resort tie-break.
func (s *Store) eventTableDDL(ts *schema.TableSchema, name string, ifNotExists bool) string {
	idDef := "ingest_id INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == "pgx" {
		idDef = "ingest_id BIGSERIAL PRIMARY KEY"
	}

	defs := make([]string, 0, len(ts.Columns)+1)
	defs = append(defs, idDef)
	for _, col := range ts.Columns {
		defs = append(defs, fmt.Sprintf("%s %s", col.Name, col.Type))
	}

	clause := "CREATE TABLE"
	if ifNotExists {
		clause = "CREATE TABLE IF NOT EXISTS"
	}
	return fmt.Sprintf("%s %s (\n\t%s\n)", clause, name, strings.Join(defs, ",\n\t"))
}

// EnsureEventTable creates the table for a registered schema if it does
// not exist
func (s *Store) EnsureEventTable(ctx context.Context, ts *schema.TableSchema) error {
	if _, err := s.db.ExecContext(ctx, s.eventTableDDL(ts, ts.Name, true)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", ts.Name, err)
	}
	return nil
}

// CreateEventTable creates a sibling table with the schema's full DDL,
// autoincrementing identity included. Used for rebuilds that must stay
// writable after they replace the live table.
func (s *Store) CreateEventTable(ctx context.Context, ts *schema.TableSchema, name string) error {
	if _, err := s.db.ExecContext(ctx, s.eventTableDDL(ts, name, false)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", name, err)
	}
	return nil
}

// CopyRowsExcept copies every row of src into dst except those with the
// given ingestion ids, preserving row identities
func (s *Store) CopyRowsExcept(ctx context.Context, src, dst string, excludeIDs []int64) error {
	query := fmt.Sprintf("INSERT INTO %s (ingest_id, %s) SELECT ingest_id, %s FROM %s",
		dst, insertColumns, insertColumns, src)

	var args []interface{}
	if len(excludeIDs) > 0 {
		expanded, inArgs, err := sqlx.In(query+" WHERE ingest_id NOT IN (?)", excludeIDs)
		if err != nil {
			return fmt.Errorf("failed to build row copy query: %w", err)
		}
		query, args = expanded, inArgs
	}

	if _, err := s.db.ExecContext(ctx, s.rebind(query), args...); err != nil {
		return fmt.Errorf("failed to copy rows from %s to %s: %w", src, dst, err)
	}
	return nil
}

// TableExists reports whether a table is present in the warehouse
func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	var query string
	switch s.driver {
	case "pgx":
		query = `SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		)`
	default:
		query = `SELECT EXISTS (
			SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?
		)`
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, s.rebind(query), table).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check if table %s exists: %w", table, err)
	}
	return exists, nil
}

// Columns returns the live column names of a table
func (s *Store) Columns(ctx context.Context, table string) ([]string, error) {
	var columns []string

	switch s.driver {
	case "pgx":
		query := `SELECT column_name FROM information_schema.columns
			WHERE table_schema = 'public' AND table_name = $1
			ORDER BY ordinal_position`
		if err := s.db.SelectContext(ctx, &columns, query, table); err != nil {
			return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
		}

	default:
		rows, err := s.db.QueryxContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
		if err != nil {
			return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				cid       int
				name      string
				colType   string
				notNull   int
				dfltValue sql.NullString
				pk        int
			)
			if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
				return nil, fmt.Errorf("failed to scan column info: %w", err)
			}
			columns = append(columns, name)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error iterating columns: %w", err)
		}
	}

	return columns, nil
}

// RowCount counts rows in a partition
func (s *Store) RowCount(ctx context.Context, table string, part Partition) (int64, error) {
	clause, args := where(part)
	query := s.rebind(fmt.Sprintf("SELECT COUNT(*) FROM %s%s", table, clause))

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", table, err)
	}
	return count, nil
}

// NullCount counts rows where the given field is NULL
func (s *Store) NullCount(ctx context.Context, table, field string, part Partition) (int64, error) {
	clause, args := where(part)
	cond := fmt.Sprintf("%s IS NULL", field)
	if clause == "" {
		clause = " WHERE " + cond
	} else {
		clause += " AND " + cond
	}

	query := s.rebind(fmt.Sprintf("SELECT COUNT(*) FROM %s%s", table, clause))

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count NULLs in %s.%s: %w", table, field, err)
	}
	return count, nil
}

// DistinctKeyCount counts distinct natural keys in a partition
func (s *Store) DistinctKeyCount(ctx context.Context, table string, keyFields []string, part Partition) (int64, error) {
	clause, args := where(part)
	query := s.rebind(fmt.Sprintf(
		"SELECT COUNT(*) FROM (SELECT 1 AS one FROM %s%s GROUP BY %s) AS grouped",
		table, clause, strings.Join(keyFields, ", ")))

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count distinct keys in %s: %w", table, err)
	}
	return count, nil
}

// OutOfRangeCount counts rows with a field outside [min, max]. NULLs do
// not count against the range.
func (s *Store) OutOfRangeCount(ctx context.Context, table, field string, min, max float64, part Partition) (int64, error) {
	clause, args := where(part)
	cond := fmt.Sprintf("(%s < ? OR %s > ?)", field, field)
	if clause == "" {
		clause = " WHERE " + cond
	} else {
		clause += " AND " + cond
	}
	args = append(args, min, max)

	query := s.rebind(fmt.Sprintf("SELECT COUNT(*) FROM %s%s", table, clause))

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count out-of-range rows in %s.%s: %w", table, field, err)
	}
	return count, nil
}

// MaxDate returns the maximum value of a date field, or ok=false when
// the partition holds no dated rows
func (s *Store) MaxDate(ctx context.Context, table, field string, part Partition) (string, bool, error) {
	clause, args := where(part)
	query := s.rebind(fmt.Sprintf("SELECT MAX(%s) FROM %s%s", field, table, clause))

	var max sql.NullString
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&max); err != nil {
		return "", false, fmt.Errorf("failed to read max %s from %s: %w", field, table, err)
	}
	if !max.Valid {
		return "", false, nil
	}
	return max.String, true, nil
}

// DistinctPartitions lists the distinct values of the partition field,
// ordered ascending
func (s *Store) DistinctPartitions(ctx context.Context, table, field string) ([]int64, error) {
	query := fmt.Sprintf(
		"SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL ORDER BY %s",
		field, table, field, field)

	var values []int64
	if err := s.db.SelectContext(ctx, &values, query); err != nil {
		return nil, fmt.Errorf("failed to list partitions of %s: %w", table, err)
	}
	return values, nil
}

// DistinctStrings lists the distinct values of a text column, ordered
// ascending
func (s *Store) DistinctStrings(ctx context.Context, table, field string) ([]string, error) {
	query := fmt.Sprintf(
		"SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL ORDER BY %s",
		field, table, field, field)

	var values []string
	if err := s.db.SelectContext(ctx, &values, query); err != nil {
		return nil, fmt.Errorf("failed to list distinct %s values of %s: %w", field, table, err)
	}
	return values, nil
}

// SelectRecords reads all event records in a partition, ordered by
// ingestion id
func (s *Store) SelectRecords(ctx context.Context, table string, part Partition) ([]model.EventRecord, error) {
	clause, args := where(part)
	query := s.rebind(fmt.Sprintf(
		"SELECT %s FROM %s%s ORDER BY ingest_id", recordColumns, table, clause))

	var records []model.EventRecord
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select records from %s: %w", table, err)
	}
	return records, nil
}

// SelectByKey reads every physical row for one natural key
func (s *Store) SelectByKey(ctx context.Context, table string, key model.NaturalKey) ([]model.EventRecord, error) {
	query := s.rebind(fmt.Sprintf(
		"SELECT %s FROM %s WHERE game_id = ? AND game_type = ? ORDER BY ingest_id",
		recordColumns, table))

	var records []model.EventRecord
	if err := s.db.SelectContext(ctx, &records, query, key.GameID, key.GameType); err != nil {
		return nil, fmt.Errorf("failed to select key %s from %s: %w", key, table, err)
	}
	return records, nil
}

// recordColumns is the stable column list for event record scans;
// ingest_id stays first so ordering reads naturally in the SQL.
const recordColumns = `ingest_id, game_id, game_type, season, game_date, status_code,
	home_team_id, away_team_id, home_team_name, away_team_name,
	home_score, away_score, venue_id, venue_name, ingested_at`

const insertColumns = `game_id, game_type, season, game_date, status_code,
	home_team_id, away_team_id, home_team_name, away_team_name,
	home_score, away_score, venue_id, venue_name, ingested_at`

const insertBindings = `:game_id, :game_type, :season, :game_date, :status_code,
	:home_team_id, :away_team_id, :home_team_name, :away_team_name,
	:home_score, :away_score, :venue_id, :venue_name, :ingested_at`

// InsertRecord inserts one event record within the given transaction
func (s *Store) InsertRecord(ctx context.Context, tx *sqlx.Tx, table string, rec *model.EventRecord) error {
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, insertColumns, insertBindings)
	if _, err := tx.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("failed to insert record %s into %s: %w", rec.Key(), table, err)
	}
	return nil
}

// ReplaceRecord atomically replaces every row for a natural key with
// the given record. Runs inside the given transaction so readers never
// observe zero or two rows for the key.
func (s *Store) ReplaceRecord(ctx context.Context, tx *sqlx.Tx, table string, rec *model.EventRecord) error {
	deleteSQL := tx.Rebind(fmt.Sprintf(
		"DELETE FROM %s WHERE game_id = ? AND game_type = ?", table))
	if _, err := tx.ExecContext(ctx, deleteSQL, rec.GameID, rec.GameType); err != nil {
		return fmt.Errorf("failed to delete existing rows for %s: %w", rec.Key(), err)
	}

	return s.InsertRecord(ctx, tx, table, rec)
}

// WithTx runs fn inside a transaction, rolling back on error
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("Failed to rollback transaction",
				zap.Error(rbErr),
				zap.NamedError("cause", err))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateTableAsSelect materializes a new table from a SELECT statement
func (s *Store) CreateTableAsSelect(ctx context.Context, dst, selectSQL string, args ...interface{}) error {
	query := s.rebind(fmt.Sprintf("CREATE TABLE %s AS %s", dst, selectSQL))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to create table %s: %w", dst, err)
	}
	return nil
}

// DropTable removes a table from the warehouse
func (s *Store) DropTable(ctx context.Context, table string) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", table, err)
	}
	return nil
}

// SwapTables atomically replaces the live table with its replacement.
// Both renames and the final drop run in one transaction, so concurrent
// readers see either the old table or the new one, never an
// intermediate state.
func (s *Store) SwapTables(ctx context.Context, live, replacement string) error {
	retired := live + "_retired"

	return s.WithTx(ctx, func(tx *sqlx.Tx) error {
		steps := []string{
			fmt.Sprintf("ALTER TABLE %s RENAME TO %s", live, retired),
			fmt.Sprintf("ALTER TABLE %s RENAME TO %s", replacement, live),
			fmt.Sprintf("DROP TABLE %s", retired),
		}
		for _, step := range steps {
			if _, err := tx.ExecContext(ctx, step); err != nil {
				return fmt.Errorf("table swap failed at %q: %w", step, err)
			}
		}
		return nil
	})
}
