package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/medlens/medlens/internal/table"
)

// ReadCSV loads a delimited text file into a table. The first record is the
// header. Column types are inferred over the whole file: a column where every
// non-empty cell parses as an integer becomes Int, as a number Float,
// otherwise Text. Empty cells become NULL.
func ReadCSV(path string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &FormatError{Path: path, Err: errors.New("empty file")}
		}
		return nil, &FormatError{Path: path, Err: err}
	}

	var raw [][]string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &FormatError{Path: path, Err: err}
		}
		raw = append(raw, record)
	}

	cols := make([]table.Column, len(header))
	for i, name := range header {
		cols[i] = table.Column{Name: name, Type: inferCSVColumn(raw, i)}
	}

	t := &table.Table{Columns: cols, Rows: make([][]any, 0, len(raw))}
	for _, record := range raw {
		row := make([]any, len(cols))
		for i, col := range cols {
			if i >= len(record) || record[i] == "" {
				continue
			}
			row[i] = csvCell(record[i], col.Type)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func inferCSVColumn(rows [][]string, col int) table.Type {
	t := table.Int
	seen := false
	for _, record := range rows {
		if col >= len(record) || record[col] == "" {
			continue
		}
		seen = true
		cell := record[col]
		if t == table.Int {
			if _, err := strconv.ParseInt(cell, 10, 64); err == nil {
				continue
			}
			t = table.Float
		}
		if t == table.Float {
			if _, err := decimal.NewFromString(cell); err == nil {
				continue
			}
			return table.Text
		}
	}
	if !seen {
		return table.Text
	}
	return t
}

func csvCell(cell string, t table.Type) any {
	switch t {
	case table.Int:
		i, err := strconv.ParseInt(cell, 10, 64)
		if err != nil {
			return cell
		}
		return i
	case table.Float:
		d, err := decimal.NewFromString(cell)
		if err != nil {
			return cell
		}
		return d
	default:
		return cell
	}
}
