// Package table defines the in-memory tabular data model shared by the
// fetch clients, the cache, and the query engine.
package table

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Type categorizes the values held by a column.
type Type int

const (
	// Text holds free-form string data.
	Text Type = iota
	// Int holds 64-bit integers.
	Int
	// Float holds floating point or exact decimal numerics.
	Float
	// Bool holds booleans.
	Bool
)

// String returns the lower-case type name.
func (t Type) String() string {
	switch t {
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	default:
		return "text"
	}
}

// Column describes one column of a Table.
type Column struct {
	Name string
	Type Type
}

// Table is a row-major tabular dataset. Cell values are nil, string, int64,
// float64, bool, or decimal.Decimal; the column Type records what was
// inferred at construction time and drives persistence schemas.
type Table struct {
	Columns []Column
	Rows    [][]any
}

// New returns an empty table with the given columns.
func New(cols ...Column) *Table {
	return &Table{Columns: cols}
}

// AppendRow adds a row, enforcing column arity.
func (t *Table) AppendRow(vals ...any) error {
	if len(vals) != len(t.Columns) {
		return fmt.Errorf("table: row has %d cells, want %d", len(vals), len(t.Columns))
	}
	row := make([]any, len(vals))
	copy(row, vals)
	t.Rows = append(t.Rows, row)
	return nil
}

// RowCount returns the number of rows.
func (t *Table) RowCount() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool {
	return t.RowCount() == 0
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of the named column, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Head returns a table holding at most n leading rows. The returned table
// shares row slices with the receiver.
func (t *Table) Head(n int) *Table {
	if n < 0 {
		n = 0
	}
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return &Table{Columns: t.Columns, Rows: t.Rows[:n]}
}

// Select returns a table restricted to the named columns, skipping names the
// table does not have. A nil result means no requested column exists.
func (t *Table) Select(names []string) *Table {
	idx := make([]int, 0, len(names))
	cols := make([]Column, 0, len(names))
	for _, name := range names {
		if i := t.Index(name); i >= 0 {
			idx = append(idx, i)
			cols = append(cols, t.Columns[i])
		}
	}
	if len(idx) == 0 {
		return nil
	}
	out := &Table{Columns: cols, Rows: make([][]any, 0, len(t.Rows))}
	for _, row := range t.Rows {
		sel := make([]any, len(idx))
		for j, i := range idx {
			sel[j] = row[i]
		}
		out.Rows = append(out.Rows, sel)
	}
	return out
}

// Records converts rows to JSON-friendly maps keyed by column name.
// Exact decimals are emitted as json.Number so they serialize unquoted.
func (t *Table) Records() []map[string]any {
	records := make([]map[string]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]any, len(t.Columns))
		for i, col := range t.Columns {
			rec[col.Name] = jsonValue(row[i])
		}
		records = append(records, rec)
	}
	return records
}

func jsonValue(v any) any {
	if d, ok := v.(decimal.Decimal); ok {
		return json.Number(d.String())
	}
	return v
}

// FormatCell renders a cell for human-readable output (CLI tables, CSV).
func FormatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case decimal.Decimal:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
