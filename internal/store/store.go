// Package store persists tables to disk as Parquet files and reads them
// back. It is the only package that touches the columnar format; the cache
// manager and query engine consume it as a plain read/write adapter.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"github.com/medlens/medlens/internal/table"
)

// ErrNotFound indicates the requested file does not exist.
var ErrNotFound = errors.New("store: file not found")

// FormatError indicates a file exists but cannot be decoded.
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unreadable table file %s: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Parquet groups order fields lexicographically, so the original column
// order is recorded in the file footer and restored on read.
const columnOrderKey = "medlens:column-order"

// Write persists a table to path as a Parquet file. The write goes directly
// to the final path; the cache manager is the sole writer and treats a
// truncated file as a miss on the next read.
func Write(path string, t *table.Table) error {
	if t == nil {
		return errors.New("store: nil table")
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	order, err := json.Marshal(t.ColumnNames())
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("encode column order: %w", err)
	}

	w := parquet.NewGenericWriter[map[string]any](f,
		buildSchema(t.Columns),
		parquet.KeyValueMetadata(columnOrderKey, string(order)),
	)

	rows := make([]map[string]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]any, len(t.Columns))
		for i, col := range t.Columns {
			if v := parquetCell(row[i], col.Type); v != nil {
				rec[col.Name] = v
			}
		}
		rows = append(rows, rec)
	}

	if len(rows) > 0 {
		if _, err := w.Write(rows); err != nil {
			_ = f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := w.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("finalize %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// Read loads a Parquet file written by Write into a table. Returns
// ErrNotFound when the file is absent and a FormatError when it cannot be
// decoded.
func Read(path string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}

	fields := pf.Schema().Fields()
	cols := make([]table.Column, len(fields))
	for i, field := range fields {
		cols[i] = table.Column{Name: field.Name(), Type: fieldType(field)}
	}

	// perm maps the file's leaf index to the output column index.
	perm := make([]int, len(cols))
	for i := range perm {
		perm[i] = i
	}
	outCols := cols
	if raw, ok := pf.Lookup(columnOrderKey); ok {
		var names []string
		if err := json.Unmarshal([]byte(raw), &names); err == nil && len(names) == len(cols) {
			if ordered, mapping, ok := reorder(cols, names); ok {
				outCols = ordered
				perm = mapping
			}
		}
	}

	t := &table.Table{Columns: outCols}
	buf := make([]parquet.Row, 128)
	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()
		for {
			n, rerr := rows.ReadRows(buf)
			for _, prow := range buf[:n] {
				out := make([]any, len(outCols))
				for _, v := range prow {
					ci := int(v.Column())
					if ci < 0 || ci >= len(perm) {
						continue
					}
					out[perm[ci]] = goValue(v)
				}
				t.Rows = append(t.Rows, out)
			}
			if rerr != nil {
				_ = rows.Close()
				if errors.Is(rerr, io.EOF) {
					break
				}
				return nil, &FormatError{Path: path, Err: rerr}
			}
		}
	}
	return t, nil
}

// reorder arranges cols to match the recorded names. The returned mapping
// translates original (lexicographic) indexes to output positions.
func reorder(cols []table.Column, names []string) ([]table.Column, []int, bool) {
	byName := make(map[string]int, len(cols))
	for i, c := range cols {
		byName[c.Name] = i
	}
	ordered := make([]table.Column, len(names))
	mapping := make([]int, len(cols))
	for outIdx, name := range names {
		srcIdx, ok := byName[name]
		if !ok {
			return nil, nil, false
		}
		ordered[outIdx] = cols[srcIdx]
		mapping[srcIdx] = outIdx
	}
	return ordered, mapping, true
}

func buildSchema(cols []table.Column) *parquet.Schema {
	group := parquet.Group{}
	for _, col := range cols {
		var node parquet.Node
		switch col.Type {
		case table.Int:
			node = parquet.Int(64)
		case table.Float:
			node = parquet.Leaf(parquet.DoubleType)
		case table.Bool:
			node = parquet.Leaf(parquet.BooleanType)
		default:
			node = parquet.String()
		}
		group[col.Name] = parquet.Optional(node)
	}
	return parquet.NewSchema("medlens", group)
}

func fieldType(field parquet.Field) table.Type {
	switch field.Type().Kind() {
	case parquet.Boolean:
		return table.Bool
	case parquet.Int32, parquet.Int64:
		return table.Int
	case parquet.Float, parquet.Double:
		return table.Float
	default:
		return table.Text
	}
}

// parquetCell coerces a cell to the physical type of its column. Cells that
// disagree with the column type only occur in Text columns, which accept any
// value via formatting.
func parquetCell(v any, t table.Type) any {
	if v == nil {
		return nil
	}
	switch t {
	case table.Int:
		if i, ok := v.(int64); ok {
			return i
		}
	case table.Float:
		switch val := v.(type) {
		case float64:
			return val
		case int64:
			return float64(val)
		case decimal.Decimal:
			return val.InexactFloat64()
		}
	case table.Bool:
		if b, ok := v.(bool); ok {
			return b
		}
	default:
		return table.FormatCell(v)
	}
	return nil
}

func goValue(v parquet.Value) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return int64(v.Int32())
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return float64(v.Float())
	case parquet.Double:
		return v.Double()
	default:
		return v.String()
	}
}
