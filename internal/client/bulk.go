package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/medlens/medlens/internal/catalog"
	"github.com/medlens/medlens/internal/store"
	"github.com/medlens/medlens/internal/table"
)

// BulkClient downloads whole-file CSV datasets. The file is fetched once into
// BulkDir and reused afterwards; params are applied locally as column=value
// string filters, since there is no query API behind these files.
type BulkClient struct {
	opts Options
	dir  string
}

func NewBulkClient(opts Options) (*BulkClient, error) {
	opts = opts.withDefaults()
	if opts.BulkDir == "" {
		return nil, errors.New("bulk client requires Options.BulkDir")
	}
	if err := os.MkdirAll(opts.BulkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create bulk dir: %w", err)
	}
	return &BulkClient{opts: opts, dir: opts.BulkDir}, nil
}

func (c *BulkClient) Fetch(ctx context.Context, ds catalog.Dataset, params map[string]any, limit, offset int) (*table.Table, error) {
	path, err := c.downloadIfNeeded(ctx, ds)
	if err != nil {
		return nil, err
	}
	t, err := store.ReadCSV(path)
	if err != nil {
		return nil, err
	}
	t = filterRows(t, params)
	if offset > 0 {
		if offset >= t.RowCount() {
			t.Rows = nil
		} else {
			t.Rows = t.Rows[offset:]
		}
	}
	if limit > 0 {
		t = t.Head(limit)
	}
	return t, nil
}

func (c *BulkClient) FetchAll(ctx context.Context, ds catalog.Dataset, params map[string]any, maxRecords int) (*table.Table, error) {
	return c.Fetch(ctx, ds, params, maxRecords, 0)
}

func (c *BulkClient) downloadIfNeeded(ctx context.Context, ds catalog.Dataset) (string, error) {
	path := filepath.Join(c.dir, ds.ID+".csv")
	if info, err := os.Stat(path); err == nil {
		if c.opts.BulkMaxAge <= 0 || time.Since(info.ModTime()) < c.opts.BulkMaxAge {
			c.opts.Logger.Debug("using downloaded file", "path", path)
			return path, nil
		}
		c.opts.Logger.Info("bulk file stale, re-downloading", "path", path)
	}

	c.opts.Logger.Info("downloading bulk file", "url", ds.APIEndpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ds.APIEndpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", ds.APIEndpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{URL: ds.APIEndpoint, StatusCode: resp.StatusCode}
	}

	tmp, err := os.CreateTemp(c.dir, ds.ID+".*.part")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("download %s: %w", ds.APIEndpoint, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	c.opts.Logger.Info("downloaded bulk file", "path", path)
	return path, nil
}

func filterRows(t *table.Table, params map[string]any) *table.Table {
	if len(params) == 0 {
		return t
	}
	filtered := table.New(t.Columns...)
	for _, row := range t.Rows {
		keep := true
		for key, want := range params {
			idx := t.Index(key)
			if idx < 0 {
				continue
			}
			if table.FormatCell(row[idx]) != formatValue(want) {
				keep = false
				break
			}
		}
		if keep {
			filtered.AppendRow(row...)
		}
	}
	return filtered
}
