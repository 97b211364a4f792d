package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/medlens/medlens/internal/table"
)

// Output formats for tabular results.
const (
	formatTable = "table"
	formatCSV   = "csv"
	formatJSON  = "json"
)

// maxTableCell caps a cell's rendered width in table output; CSV and JSON
// are never truncated.
const maxTableCell = 48

func renderTable(w io.Writer, t *table.Table, format string) error {
	switch format {
	case formatTable, "":
		return writeAligned(w, t)
	case formatCSV:
		return writeCSV(w, t)
	case formatJSON:
		return writeJSON(w, t)
	default:
		return fmt.Errorf("unknown output format %q (want table, csv, or json)", format)
	}
}

func writeAligned(w io.Writer, t *table.Table) error {
	names := t.ColumnNames()
	widths := make([]int, len(names))
	for i, name := range names {
		widths[i] = len(name)
	}

	cells := make([][]string, len(t.Rows))
	for r, row := range t.Rows {
		cells[r] = make([]string, len(row))
		for c, v := range row {
			s := truncate(table.FormatCell(v), maxTableCell)
			cells[r][c] = s
			if len(s) > widths[c] {
				widths[c] = len(s)
			}
		}
	}

	writeRow := func(fields []string) error {
		parts := make([]string, len(fields))
		for i, f := range fields {
			parts[i] = fmt.Sprintf("%-*s", widths[i], f)
		}
		_, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
		return err
	}

	if err := writeRow(names); err != nil {
		return err
	}
	rules := make([]string, len(names))
	for i := range rules {
		rules[i] = strings.Repeat("-", widths[i])
	}
	if err := writeRow(rules); err != nil {
		return err
	}
	for _, row := range cells {
		if err := writeRow(row); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "(%d rows)\n", t.RowCount())
	return err
}

// truncate shortens s to at most max runes, never splitting a multibyte
// sequence.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}

func writeCSV(w io.Writer, t *table.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.ColumnNames()); err != nil {
		return err
	}
	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, v := range row {
			record[i] = table.FormatCell(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w io.Writer, t *table.Table) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(t.Records())
}
