package table

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

func TestAppendRowArity(t *testing.T) {
	tbl := New(Column{Name: "a"}, Column{Name: "b"})

	if err := tbl.AppendRow("x", int64(1)); err != nil {
		t.Fatalf("AppendRow failed: %v", err)
	}
	if err := tbl.AppendRow("only-one"); err == nil {
		t.Fatal("expected arity error, got nil")
	}
	if got := tbl.RowCount(); got != 1 {
		t.Errorf("expected 1 row, got %d", got)
	}
}

func TestFromRecordsColumnsAndTypes(t *testing.T) {
	records := []map[string]any{
		{"name": "Mercy Hospital", "beds": json.Number("250"), "rating": json.Number("4.5"), "open": true},
		{"name": "County General", "beds": json.Number("90"), "rating": json.Number("3.0"), "open": false},
	}

	tbl := FromRecords(records)

	wantCols := []Column{
		{Name: "beds", Type: Int},
		{Name: "name", Type: Text},
		{Name: "open", Type: Bool},
		{Name: "rating", Type: Float},
	}
	if diff := cmp.Diff(wantCols, tbl.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	if tbl.RowCount() != 2 {
		t.Fatalf("expected 2 rows, got %d", tbl.RowCount())
	}

	rating := tbl.Rows[0][tbl.Index("rating")]
	d, ok := rating.(decimal.Decimal)
	if !ok {
		t.Fatalf("expected decimal rating, got %T", rating)
	}
	if d.String() != "4.5" {
		t.Errorf("expected rating 4.5, got %s", d)
	}
}

func TestFromRecordsRaggedRecords(t *testing.T) {
	records := []map[string]any{
		{"a": "1"},
		{"a": "2", "b": "extra"},
	}

	tbl := FromRecords(records)

	if got := len(tbl.Columns); got != 2 {
		t.Fatalf("expected 2 columns, got %d", got)
	}
	// Missing cells are NULL.
	if v := tbl.Rows[0][tbl.Index("b")]; v != nil {
		t.Errorf("expected nil for missing cell, got %v", v)
	}
}

func TestFromRecordsNestedValues(t *testing.T) {
	records := []map[string]any{
		{"addr": map[string]any{"city": "Oakland"}, "tags": []any{"a", "b"}},
	}

	tbl := FromRecords(records)

	if got := tbl.Rows[0][tbl.Index("addr")]; got != `{"city":"Oakland"}` {
		t.Errorf("expected nested object as JSON text, got %v", got)
	}
	if got := tbl.Rows[0][tbl.Index("tags")]; got != `["a","b"]` {
		t.Errorf("expected nested array as JSON text, got %v", got)
	}
}

func TestDecodeJSONPreservesPrecision(t *testing.T) {
	data := []byte(`[{"amount": 12345678901234.5678, "count": 42}]`)

	records, err := DecodeJSON(data)
	if err != nil {
		t.Fatalf("DecodeJSON failed: %v", err)
	}
	tbl := FromRecords(records)

	amount, ok := tbl.Rows[0][tbl.Index("amount")].(decimal.Decimal)
	if !ok {
		t.Fatalf("expected decimal amount, got %T", tbl.Rows[0][tbl.Index("amount")])
	}
	if amount.String() != "12345678901234.5678" {
		t.Errorf("amount lost precision: %s", amount)
	}
	if count := tbl.Rows[0][tbl.Index("count")]; count != int64(42) {
		t.Errorf("expected int64 42, got %v (%T)", count, count)
	}
}

func TestSelect(t *testing.T) {
	tbl := New(Column{Name: "a"}, Column{Name: "b"}, Column{Name: "c"})
	if err := tbl.AppendRow("1", "2", "3"); err != nil {
		t.Fatalf("AppendRow failed: %v", err)
	}

	sel := tbl.Select([]string{"c", "missing", "a"})
	if sel == nil {
		t.Fatal("expected selection, got nil")
	}
	if diff := cmp.Diff([]string{"c", "a"}, sel.ColumnNames()); diff != "" {
		t.Errorf("selected columns mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{"3", "1"}, sel.Rows[0]); diff != "" {
		t.Errorf("selected row mismatch (-want +got):\n%s", diff)
	}

	if got := tbl.Select([]string{"nope"}); got != nil {
		t.Errorf("expected nil for all-missing selection, got %v", got)
	}
}

func TestHead(t *testing.T) {
	tbl := New(Column{Name: "n", Type: Int})
	for i := range 5 {
		if err := tbl.AppendRow(int64(i)); err != nil {
			t.Fatalf("AppendRow failed: %v", err)
		}
	}

	if got := tbl.Head(3).RowCount(); got != 3 {
		t.Errorf("Head(3) returned %d rows", got)
	}
	if got := tbl.Head(10).RowCount(); got != 5 {
		t.Errorf("Head(10) returned %d rows", got)
	}
}

func TestRecordsRoundTrip(t *testing.T) {
	tbl := New(Column{Name: "name", Type: Text}, Column{Name: "score", Type: Float})
	if err := tbl.AppendRow("x", decimal.RequireFromString("1.5")); err != nil {
		t.Fatalf("AppendRow failed: %v", err)
	}

	records := tbl.Records()
	data, err := json.Marshal(records)
	if err != nil {
		t.Fatalf("marshal records: %v", err)
	}
	// Exact decimals serialize as bare numbers, not quoted strings.
	want := `[{"name":"x","score":1.5}]`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}
}

func TestFormatCell(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"s", "s"},
		{int64(7), "7"},
		{3.5, "3.5"},
		{true, "true"},
		{decimal.RequireFromString("2.5"), "2.5"},
	}
	for _, tt := range tests {
		if got := FormatCell(tt.in); got != tt.want {
			t.Errorf("FormatCell(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
