// Package cache manages the on-disk store of downloaded dataset tables: one
// Parquet file per cached query result plus a JSON index mapping fingerprint
// keys to entry metadata.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/medlens/medlens/internal/logging"
	"github.com/medlens/medlens/internal/store"
	"github.com/medlens/medlens/internal/table"
)

// DefaultTTL is how long a cached table stays fresh unless a caller asks
// otherwise.
const DefaultTTL = 7 * 24 * time.Hour

const (
	indexFileName = "cache_index.json"
	cacheDirPerm  = 0o750
	indexFilePerm = 0o600
)

// Entry is the persisted metadata for one cached query result.
type Entry struct {
	DatasetID    string         `json:"dataset_id"`
	Params       map[string]any `json:"params"`
	Path         string         `json:"path"`
	DownloadedAt float64        `json:"downloaded_at"`
	SizeBytes    int64          `json:"size_bytes"`
	RowCount     int            `json:"row_count"`
}

// ListEntry is an Entry annotated with its key and a live existence check of
// the backing file.
type ListEntry struct {
	Key    string `json:"cache_key"`
	Exists bool   `json:"exists"`
	Entry
}

// Stats summarizes the cache contents.
type Stats struct {
	EntryCount         int    `json:"entry_count"`
	TotalBytes         int64  `json:"total_bytes"`
	UniqueDatasetCount int    `json:"unique_dataset_count"`
	CacheDirectory     string `json:"cache_directory"`
}

// Manager owns a cache directory and its index. The index is loaded once at
// construction and rewritten wholesale on every mutation; a mutex serializes
// read-modify-write so concurrent callers inside one process cannot corrupt
// it. Multi-process coherency is out of scope.
type Manager struct {
	dir       string
	indexPath string
	logger    logging.Logger

	mu    sync.Mutex
	index map[string]Entry
}

// NewManager opens (or creates) the cache directory at dir and loads the
// index.
func NewManager(dir string, logger logging.Logger) (*Manager, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if err := os.MkdirAll(dir, cacheDirPerm); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	m := &Manager{
		dir:       dir,
		indexPath: filepath.Join(dir, indexFileName),
		logger:    logger,
		index:     make(map[string]Entry),
	}

	data, err := os.ReadFile(m.indexPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return m, nil
		}
		return nil, fmt.Errorf("read cache index: %w", err)
	}
	if err := json.Unmarshal(data, &m.index); err != nil {
		return nil, fmt.Errorf("parse cache index %s: %w", m.indexPath, err)
	}
	return m, nil
}

// Dir returns the cache directory root.
func (m *Manager) Dir() string {
	return m.dir
}

// Get returns the cached table for (datasetID, params) if present, fresh
// within ttl, and still on disk. Misses are reported via the bool, never as
// an error; ttl <= 0 selects DefaultTTL.
func (m *Manager) Get(_ context.Context, datasetID string, params map[string]any, ttl time.Duration) (*table.Table, bool, error) {
	key, err := Key(datasetID, params)
	if err != nil {
		return nil, false, err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	m.mu.Lock()
	entry, ok := m.index[key]
	m.mu.Unlock()
	if !ok {
		return nil, false, nil
	}

	age := time.Since(unixFloat(entry.DownloadedAt))
	if age > ttl {
		m.logger.Info("cache expired", "dataset", datasetID, "age", age.Truncate(time.Second).String())
		return nil, false, nil
	}

	// The index is not trusted on its own: the backing file may have been
	// deleted out of band.
	if _, err := os.Stat(entry.Path); err != nil {
		return nil, false, nil
	}

	t, err := store.Read(entry.Path)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	m.logger.Info("cache hit", "dataset", datasetID, "rows", entry.RowCount)
	return t, true, nil
}

// Put persists a table for (datasetID, params) and records it in the index,
// replacing any previous entry for the same key. Returns the file path.
func (m *Manager) Put(_ context.Context, datasetID string, t *table.Table, params map[string]any) (string, error) {
	key, err := Key(datasetID, params)
	if err != nil {
		return "", err
	}
	path := filepath.Join(m.dir, key+".parquet")

	if err := store.Write(path, t); err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat cached file: %w", err)
	}

	if params == nil {
		params = map[string]any{}
	}
	entry := Entry{
		DatasetID:    datasetID,
		Params:       params,
		Path:         path,
		DownloadedAt: float64(time.Now().UnixNano()) / float64(time.Second),
		SizeBytes:    info.Size(),
		RowCount:     t.RowCount(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.index[key] = entry
	if err := m.saveIndexLocked(); err != nil {
		return "", err
	}
	m.logger.Info("cached table", "dataset", datasetID, "rows", t.RowCount(), "path", path)
	return path, nil
}

// List returns every index entry, annotated with whether its backing file
// currently exists. Entries are ordered by key for stable output.
func (m *Manager) List() []ListEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]ListEntry, 0, len(m.index))
	for key, entry := range m.index {
		_, statErr := os.Stat(entry.Path)
		entries = append(entries, ListEntry{Key: key, Exists: statErr == nil, Entry: entry})
	}
	slices.SortFunc(entries, func(a, b ListEntry) int {
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		default:
			return 0
		}
	})
	return entries
}

// Clear removes cached entries and their files. With a datasetID it removes
// only that dataset's entries; with the empty string it removes everything.
// Already-missing files are skipped, not errors. Returns the number of
// entries removed.
func (m *Manager) Clear(_ context.Context, datasetID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, entry := range m.index {
		if datasetID != "" && entry.DatasetID != datasetID {
			continue
		}
		if err := os.Remove(entry.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("remove %s: %w", entry.Path, err)
		}
		delete(m.index, key)
		removed++
	}
	if err := m.saveIndexLocked(); err != nil {
		return removed, err
	}
	return removed, nil
}

// Stats summarizes the current index contents.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	datasets := make(map[string]struct{})
	var totalBytes int64
	for _, entry := range m.index {
		totalBytes += entry.SizeBytes
		datasets[entry.DatasetID] = struct{}{}
	}
	return Stats{
		EntryCount:         len(m.index),
		TotalBytes:         totalBytes,
		UniqueDatasetCount: len(datasets),
		CacheDirectory:     m.dir,
	}
}

// saveIndexLocked rewrites the whole index file. Callers must hold m.mu.
func (m *Manager) saveIndexLocked() error {
	data, err := json.MarshalIndent(m.index, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache index: %w", err)
	}
	if err := os.WriteFile(m.indexPath, data, indexFilePerm); err != nil {
		return fmt.Errorf("write cache index: %w", err)
	}
	return nil
}

func unixFloat(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}
