package table

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/shopspring/decimal"
)

// DecodeJSON decodes a JSON array of objects without losing numeric
// precision: integral numbers become int64, everything else becomes an exact
// decimal. API payloads carry money amounts that must not drift through
// float64.
func DecodeJSON(data []byte) ([]map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var records []map[string]any
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}

// FromRecords builds a Table from decoded JSON objects. Columns are the
// union of keys across all records in first-seen order; each column's type
// is taken from its first non-null value. Nested objects and arrays are
// re-encoded as JSON text.
func FromRecords(records []map[string]any) *Table {
	t := &Table{}
	if len(records) == 0 {
		return t
	}

	// Map iteration order is random, so keys are sorted per record to keep
	// the resulting column order deterministic.
	index := make(map[string]int)
	for _, rec := range records {
		for _, key := range sortedKeys(rec) {
			if _, ok := index[key]; !ok {
				index[key] = len(t.Columns)
				t.Columns = append(t.Columns, Column{Name: key, Type: Text})
			}
		}
	}

	typed := make([]bool, len(t.Columns))
	for _, rec := range records {
		row := make([]any, len(t.Columns))
		for key, raw := range rec {
			i := index[key]
			v := normalizeValue(raw)
			row[i] = v
			if v == nil {
				continue
			}
			vt := inferType(v)
			if !typed[i] {
				t.Columns[i].Type = vt
				typed[i] = true
			} else {
				t.Columns[i].Type = widen(t.Columns[i].Type, vt)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// widen merges the types of two values seen in the same column. Int and
// Float combine to Float; any other disagreement falls back to Text.
func widen(a, b Type) Type {
	if a == b {
		return a
	}
	if (a == Int && b == Float) || (a == Float && b == Int) {
		return Float
	}
	return Text
}

func sortedKeys(rec map[string]any) []string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string, bool, int64, float64:
		return val
	case json.Number:
		if i, err := strconv.ParseInt(val.String(), 10, 64); err == nil {
			return i
		}
		if d, err := decimal.NewFromString(val.String()); err == nil {
			return d
		}
		return val.String()
	case int:
		return int64(val)
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func inferType(v any) Type {
	switch v.(type) {
	case int64:
		return Int
	case float64, decimal.Decimal:
		return Float
	case bool:
		return Bool
	default:
		return Text
	}
}
