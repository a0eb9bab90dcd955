// pkg/schema/registry.go
package schema

import (
	"fmt"
	"strings"
)

// Column describes one declared warehouse column
type Column struct {
	Name     string
	Type     string // portable SQL type: INTEGER, BIGINT, TEXT, REAL
	Required bool   // NULLs in this column are a completeness failure
}

// RangeSpec declares the accepted value range for a numeric field
type RangeSpec struct {
	Field    string
	Min      float64
	Max      float64
	Critical bool // escalate out-of-range rows from Warning to Critical
}

// TableSchema declares the structure and quality expectations of one
// managed warehouse table. Pure data; the validation engine and the
// resolver interpret it.
type TableSchema struct {
	Name           string
	Columns        []Column
	NaturalKey     []string // business key columns; at most one row per key after reconciliation
	PartitionField string   // column partitioning validation/sync work (e.g. season)
	DateField      string   // column driving freshness checks
	StatusField    string   // lifecycle status column consulted by the authority policy
	CategoryField  string   // natural-key subtype whose value set must survive deduplication; empty disables the check
	Ranges         []RangeSpec
	MaxAgeDays     int // freshness ceiling; 0 disables the check
}

// RequiredFields returns the names of columns the registry marks mandatory
func (s *TableSchema) RequiredFields() []string {
	fields := make([]string, 0, len(s.Columns))
	for _, col := range s.Columns {
		if col.Required {
			fields = append(fields, col.Name)
		}
	}
	return fields
}

// ColumnNames returns all declared column names
func (s *TableSchema) ColumnNames() []string {
	names := make([]string, 0, len(s.Columns))
	for _, col := range s.Columns {
		names = append(names, col.Name)
	}
	return names
}

// HasColumn reports whether a column is declared (case-insensitive)
func (s *TableSchema) HasColumn(name string) bool {
	for _, col := range s.Columns {
		if strings.EqualFold(col.Name, name) {
			return true
		}
	}
	return false
}

// Registry holds the schemas of all managed tables
type Registry struct {
	tables map[string]*TableSchema
}

// NewRegistry creates a registry from the given table schemas
func NewRegistry(schemas ...*TableSchema) *Registry {
	r := &Registry{tables: make(map[string]*TableSchema, len(schemas))}
	for _, s := range schemas {
		r.tables[s.Name] = s
	}
	return r
}

// Lookup returns the schema for a table
func (r *Registry) Lookup(table string) (*TableSchema, error) {
	s, ok := r.tables[table]
	if !ok {
		return nil, fmt.Errorf("table %s is not registered", table)
	}
	return s, nil
}

// Tables returns the names of all registered tables
func (r *Registry) Tables() []string {
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	return names
}

// GamesTable is the schema of the games event table, the primary
// reconciliation target.
func GamesTable() *TableSchema {
	return &TableSchema{
		Name: "games",
		Columns: []Column{
			{Name: "game_id", Type: "BIGINT", Required: true},
			{Name: "game_type", Type: "TEXT", Required: true},
			{Name: "season", Type: "BIGINT", Required: true},
			{Name: "game_date", Type: "TEXT", Required: true},
			{Name: "status_code", Type: "TEXT", Required: true},
			{Name: "home_team_id", Type: "BIGINT", Required: true},
			{Name: "away_team_id", Type: "BIGINT", Required: true},
			{Name: "home_team_name", Type: "TEXT"},
			{Name: "away_team_name", Type: "TEXT"},
			{Name: "home_score", Type: "BIGINT"},
			{Name: "away_score", Type: "BIGINT"},
			{Name: "venue_id", Type: "BIGINT"},
			{Name: "venue_name", Type: "TEXT"},
			{Name: "ingested_at", Type: "TEXT", Required: true},
		},
		NaturalKey:     []string{"game_id", "game_type"},
		PartitionField: "season",
		DateField:      "game_date",
		StatusField:    "status_code",
		CategoryField:  "game_type",
		Ranges: []RangeSpec{
			{Field: "home_score", Min: 0, Max: 35},
			{Field: "away_score", Min: 0, Max: 35},
		},
		MaxAgeDays: 7,
	}
}

// DefaultRegistry returns the registry of all managed tables
func DefaultRegistry() *Registry {
	return NewRegistry(GamesTable())
}
