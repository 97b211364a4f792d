package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/medlens/medlens/internal/table"
)

func testTable(t *testing.T, names ...string) *table.Table {
	t.Helper()
	tbl := table.New(
		table.Column{Name: "name", Type: table.Text},
		table.Column{Name: "value", Type: table.Int},
	)
	for i, name := range names {
		if err := tbl.AppendRow(name, int64(i)); err != nil {
			t.Fatalf("AppendRow failed: %v", err)
		}
	}
	return tbl
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestKeyDeterminism(t *testing.T) {
	// Equal parameter sets must collide regardless of construction order.
	p1 := map[string]any{"state": "CA", "limit": 100, "nested": map[string]any{"a": 1, "b": 2}}
	p2 := map[string]any{"nested": map[string]any{"b": 2, "a": 1}, "limit": 100, "state": "CA"}

	k1, err := Key("xubh-q36u", p1)
	if err != nil {
		t.Fatalf("Key failed: %v", err)
	}
	k2, err := Key("xubh-q36u", p2)
	if err != nil {
		t.Fatalf("Key failed: %v", err)
	}
	if k1 != k2 {
		t.Errorf("expected identical keys, got %s and %s", k1, k2)
	}
	if len(k1) != keyLength {
		t.Errorf("expected %d hex chars, got %d", keyLength, len(k1))
	}
}

func TestKeyDiscrimination(t *testing.T) {
	base, err := Key("ds", map[string]any{"state": "CA"})
	if err != nil {
		t.Fatalf("Key failed: %v", err)
	}

	others := []map[string]any{
		{"state": "NY"},
		{"state": "CA", "limit": 10},
		{},
		nil,
	}
	for _, params := range others {
		k, err := Key("ds", params)
		if err != nil {
			t.Fatalf("Key failed: %v", err)
		}
		if k == base {
			t.Errorf("params %v unexpectedly collided with base key", params)
		}
	}

	// nil and empty params are the same query shape.
	kNil, _ := Key("ds", nil)
	kEmpty, _ := Key("ds", map[string]any{})
	if kNil != kEmpty {
		t.Errorf("nil and empty params should share a key: %s vs %s", kNil, kEmpty)
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	params := map[string]any{"state": "CA"}
	want := testTable(t, "a", "b", "c")

	if _, err := m.Put(ctx, "hospitals", want, params); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, hit, err := m.Get(ctx, "hospitals", params, 0)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !hit {
		t.Fatal("expected cache hit")
	}
	if diff := cmp.Diff(want.ColumnNames(), got.ColumnNames()); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.Rows, got.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	// Different params are a different query shape.
	_, hit, err = m.Get(ctx, "hospitals", map[string]any{"state": "NY"}, 0)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if hit {
		t.Error("expected miss for different params")
	}
}

func TestGetTTLBoundary(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	ttl := time.Hour

	if _, err := m.Put(ctx, "ds", testTable(t, "x"), nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	key, _ := Key("ds", nil)

	// Just inside the window.
	m.mu.Lock()
	entry := m.index[key]
	entry.DownloadedAt = float64(time.Now().Add(-ttl + time.Second).Unix())
	m.index[key] = entry
	m.mu.Unlock()

	if _, hit, err := m.Get(ctx, "ds", nil, ttl); err != nil || !hit {
		t.Errorf("expected hit just inside TTL, hit=%v err=%v", hit, err)
	}

	// Just past the window.
	m.mu.Lock()
	entry = m.index[key]
	entry.DownloadedAt = float64(time.Now().Add(-ttl - time.Second).Unix())
	m.index[key] = entry
	m.mu.Unlock()

	if _, hit, err := m.Get(ctx, "ds", nil, ttl); err != nil || hit {
		t.Errorf("expected miss just past TTL, hit=%v err=%v", hit, err)
	}
}

func TestGetMissingFileIsMiss(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	path, err := m.Put(ctx, "ds", testTable(t, "x"), nil)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove backing file: %v", err)
	}

	_, hit, err := m.Get(ctx, "ds", nil, 0)
	if err != nil {
		t.Fatalf("Get should not error on missing file: %v", err)
	}
	if hit {
		t.Error("expected miss after backing file deleted")
	}

	entries := m.List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Exists {
		t.Error("expected exists=false for deleted backing file")
	}
}

func TestPutOverwritesEntry(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Put(ctx, "ds", testTable(t, "a"), nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := m.Put(ctx, "ds", testTable(t, "a", "b"), nil); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}

	got, hit, err := m.Get(ctx, "ds", nil, 0)
	if err != nil || !hit {
		t.Fatalf("Get failed: hit=%v err=%v", hit, err)
	}
	if got.RowCount() != 2 {
		t.Errorf("expected latest table (2 rows), got %d rows", got.RowCount())
	}
	if entries := m.List(); len(entries) != 1 {
		t.Errorf("expected a single index entry, got %d", len(entries))
	}
}

func TestClearScoped(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Put(ctx, "keep", testTable(t, "a"), nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := m.Put(ctx, "drop", testTable(t, "b"), nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := m.Put(ctx, "drop", testTable(t, "c"), map[string]any{"p": 1}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	removed, err := m.Clear(ctx, "drop")
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}

	entries := m.List()
	if len(entries) != 1 || entries[0].DatasetID != "keep" {
		t.Errorf("expected only 'keep' to remain, got %+v", entries)
	}
	if _, err := os.Stat(entries[0].Path); err != nil {
		t.Errorf("surviving entry's file should exist: %v", err)
	}
}

func TestClearAll(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Put(ctx, "a", testTable(t, "x"), nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	path, err := m.Put(ctx, "b", testTable(t, "y"), nil)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	// Deleting a file out of band must not break Clear.
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove backing file: %v", err)
	}

	removed, err := m.Clear(ctx, "")
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	if entries := m.List(); len(entries) != 0 {
		t.Errorf("expected empty cache after Clear, got %d entries", len(entries))
	}
}

func TestStats(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Put(ctx, "a", testTable(t, "x"), nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := m.Put(ctx, "a", testTable(t, "y"), map[string]any{"p": 1}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := m.Put(ctx, "b", testTable(t, "z"), nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	stats := m.Stats()
	if stats.EntryCount != 3 {
		t.Errorf("expected 3 entries, got %d", stats.EntryCount)
	}
	if stats.UniqueDatasetCount != 2 {
		t.Errorf("expected 2 unique datasets, got %d", stats.UniqueDatasetCount)
	}
	if stats.TotalBytes <= 0 {
		t.Error("expected positive total bytes")
	}
	if stats.CacheDirectory != m.Dir() {
		t.Errorf("expected cache directory %s, got %s", m.Dir(), stats.CacheDirectory)
	}
}

func TestIndexPersistsAcrossManagers(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	m1, err := NewManager(dir, nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if _, err := m1.Put(ctx, "ds", testTable(t, "a"), nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	m2, err := NewManager(dir, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	got, hit, err := m2.Get(ctx, "ds", nil, 0)
	if err != nil || !hit {
		t.Fatalf("expected hit from reloaded index, hit=%v err=%v", hit, err)
	}
	if got.RowCount() != 1 {
		t.Errorf("expected 1 row, got %d", got.RowCount())
	}
}
