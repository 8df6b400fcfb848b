package kpi

import (
	"context"
	"strings"
	"time"
)

// Table is a loosely typed spreadsheet extract: named columns, rows oldest first.
// Cells hold whatever the source produced (string, float64, int, bool, nil).
type Table struct {
	Columns []string
	Rows    [][]any
}

// Empty reports whether the table carries no data rows.
func (t *Table) Empty() bool {
	return t == nil || len(t.Rows) == 0
}

// ColumnIndex finds a column by exact name, falling back to a case-insensitive match.
func (t *Table) ColumnIndex(name string) (int, bool) {
	if t == nil {
		return -1, false
	}
	for i, col := range t.Columns {
		if col == name {
			return i, true
		}
	}
	for i, col := range t.Columns {
		if strings.EqualFold(strings.TrimSpace(col), strings.TrimSpace(name)) {
			return i, true
		}
	}
	return -1, false
}

// Cell returns the raw value at row/column; short rows read as missing.
func (t *Table) Cell(row int, column string) (any, bool) {
	if t.Empty() || row < 0 || row >= len(t.Rows) {
		return nil, false
	}
	idx, ok := t.ColumnIndex(column)
	if !ok || idx >= len(t.Rows[row]) {
		return nil, false
	}
	return t.Rows[row][idx], true
}

// DataProvider fetches named tabular sources. A nil table with a nil error means
// the source exists but has nothing to offer yet.
type DataProvider interface {
	Fetch(ctx context.Context, alias string) (*Table, error)
	ListAvailableAliases(ctx context.Context) ([]string, error)
	ValidateAlias(alias string) bool
}

// Recorder observes pipeline outcomes for metrics.
type Recorder interface {
	ObserveResponse(loc Location, availability AvailabilityStatus, elapsed time.Duration)
	ObserveFetch(alias string, err error, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveResponse(Location, AvailabilityStatus, time.Duration) {}
func (nopRecorder) ObserveFetch(string, error, time.Duration) {}
