package transform

import (
	"github.com/rpattn/tripsync/internal/domain"
)

// Table is a batch of flat records aligned to a shared column list.
type Table struct {
	Columns []string
	Rows    [][]domain.Value
}

// Empty reports whether the table has no rows.
func (t Table) Empty() bool {
	return len(t.Rows) == 0
}

// BuildTable widens the batch schema to the union of every record's
// columns in first-seen order. Cells a record does not carry are null.
func BuildTable(records []*FlatRecord) Table {
	columns := make([]string, 0)
	seen := make(map[string]struct{})
	for _, rec := range records {
		rec.Each(func(key string, _ domain.Value) {
			if _, ok := seen[key]; ok {
				return
			}
			seen[key] = struct{}{}
			columns = append(columns, key)
		})
	}

	rows := make([][]domain.Value, 0, len(records))
	for _, rec := range records {
		row := make([]domain.Value, len(columns))
		for i, column := range columns {
			if value, ok := rec.Get(column); ok {
				row[i] = value
			}
		}
		rows = append(rows, row)
	}
	return Table{Columns: columns, Rows: rows}
}

// RowMap returns row i keyed by column name, skipping null cells.
func (t Table) RowMap(i int) map[string]string {
	out := make(map[string]string, len(t.Columns))
	for j, column := range t.Columns {
		if cell := t.Rows[i][j]; !cell.IsNull() {
			out[column] = cell.Text()
		}
	}
	return out
}
