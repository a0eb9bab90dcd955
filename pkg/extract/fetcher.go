// pkg/extract/fetcher.go
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/elijahcraig45/hanks-tank-data/pkg/connector"
	"github.com/elijahcraig45/hanks-tank-data/pkg/model"
	"github.com/elijahcraig45/hanks-tank-data/pkg/warehouse"
)

// Fetcher delivers raw records for one partition from an upstream
// source
type Fetcher interface {
	Fetch(ctx context.Context, part warehouse.Partition) ([]model.RawRecord, error)
}

// SQLFetcher reads raw records from a staging database table. Column
// names are lowercased on the way out so staging sources that report
// uppercase identifiers coerce cleanly.
type SQLFetcher struct {
	conn    connector.DatabaseConnector
	table   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewSQLFetcher creates a fetcher over a staging connector
func NewSQLFetcher(conn connector.DatabaseConnector, table string, timeout time.Duration, logger *zap.Logger) *SQLFetcher {
	return &SQLFetcher{
		conn:    conn,
		table:   table,
		timeout: timeout,
		logger:  logger.Named("extract"),
	}
}

// Fetch reads every staged row in the partition
func (f *SQLFetcher) Fetch(ctx context.Context, part warehouse.Partition) ([]model.RawRecord, error) {
	query := fmt.Sprintf("SELECT * FROM %s", f.table)
	var args []interface{}
	if !part.IsZero() {
		query += fmt.Sprintf(" WHERE %s = ?", part.Field)
		args = append(args, part.Value)
	}
	query = f.conn.DB().Rebind(query)

	rows, err := f.conn.QueryWithTimeout(ctx, query, f.timeout, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch staged records: %w", err)
	}
	defer rows.Close()

	var records []model.RawRecord
	for rows.Next() {
		row := map[string]interface{}{}
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("failed to scan staged record: %w", err)
		}

		rec := make(model.RawRecord, len(row))
		for name, value := range row {
			rec[strings.ToLower(name)] = value
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating staged records: %w", err)
	}

	f.logger.Debug("Fetched staged records",
		zap.String("table", f.table),
		zap.String("partition", part.String()),
		zap.Int("records", len(records)))

	return records, nil
}
