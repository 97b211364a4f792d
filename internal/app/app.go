// Package app wires the catalog, platform clients, cache, and query session
// into the operations exposed by the CLI and the tool server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/medlens/medlens/internal/cache"
	"github.com/medlens/medlens/internal/catalog"
	"github.com/medlens/medlens/internal/client"
	"github.com/medlens/medlens/internal/config"
	"github.com/medlens/medlens/internal/engine"
	"github.com/medlens/medlens/internal/logging"
	"github.com/medlens/medlens/internal/table"
)

// ErrNoData means a fetch succeeded but returned zero records.
var ErrNoData = errors.New("no data returned; try different filters")

// DatasetNotFoundError reports an unknown dataset ID together with the IDs
// that do exist.
type DatasetNotFoundError struct {
	ID        string
	Available []string
}

func (e *DatasetNotFoundError) Error() string {
	return fmt.Sprintf("dataset %q not found (%d datasets available)", e.ID, len(e.Available))
}

// App holds the long-lived application state.
type App struct {
	Config  config.Config
	Catalog *catalog.Catalog
	Cache   *cache.Manager
	Engine  *engine.Session
	Logger  logging.Logger

	clients map[catalog.Platform]client.Client
}

// New builds the application from resolved configuration, using the embedded
// seed catalog.
func New(cfg config.Config, logger logging.Logger) (*App, error) {
	cat, err := catalog.New()
	if err != nil {
		return nil, err
	}
	return NewWithCatalog(cfg, logger, cat)
}

// NewWithCatalog builds the application against a caller-supplied catalog.
func NewWithCatalog(cfg config.Config, logger logging.Logger, cat *catalog.Catalog) (*App, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	mgr, err := cache.NewManager(cfg.CacheDir, logger)
	if err != nil {
		return nil, err
	}
	session, err := engine.NewSession(logger)
	if err != nil {
		return nil, err
	}

	opts := client.Options{
		HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout},
		Logger:     logger,
		AppToken:   cfg.AppToken,
		BulkDir:    cfg.BulkDir,
		// Bulk files describe the provider catalog itself, so they refresh
		// on the catalog cadence rather than the per-query cache TTL.
		BulkMaxAge: cfg.CatalogTTL,
	}
	clients := make(map[catalog.Platform]client.Client)
	for _, p := range []catalog.Platform{
		catalog.PlatformSODA, catalog.PlatformCMSDataAPI, catalog.PlatformNPI, catalog.PlatformBulk,
	} {
		c, err := client.ForPlatform(p, opts)
		if err != nil {
			session.Close()
			return nil, err
		}
		clients[p] = c
	}

	return &App{
		Config:  cfg,
		Catalog: cat,
		Cache:   mgr,
		Engine:  session,
		Logger:  logger,
		clients: clients,
	}, nil
}

// Close releases the query session.
func (a *App) Close() error {
	return a.Engine.Close()
}

// ClientFor returns the platform client for a dataset. Unknown platforms fall
// back to the SODA client.
func (a *App) ClientFor(p catalog.Platform) client.Client {
	if c, ok := a.clients[p]; ok {
		return c
	}
	return a.clients[catalog.PlatformSODA]
}

func (a *App) dataset(id string) (catalog.Dataset, error) {
	ds, ok := a.Catalog.Get(id)
	if !ok {
		ids := make([]string, 0, a.Catalog.Len())
		for _, d := range a.Catalog.All() {
			ids = append(ids, d.ID)
		}
		return catalog.Dataset{}, &DatasetNotFoundError{ID: id, Available: ids}
	}
	return ds, nil
}

// QueryRequest is one page of dataset records with optional filtering.
type QueryRequest struct {
	DatasetID string
	// Filters are simple column=value equality filters.
	Filters map[string]any
	// Columns trims the result to the named columns. Empty keeps everything.
	Columns []string
	Limit   int
	Offset  int
	// OrderBy names a sort column; a "-" prefix sorts descending. SODA only.
	OrderBy string
	// Where is a raw SoQL WHERE clause. SODA only.
	Where string
}

// QueryDataset fetches one page of records, consulting the cache first. The
// limit and offset participate in the cache key, so each page caches
// independently.
func (a *App) QueryDataset(ctx context.Context, req QueryRequest) (*table.Table, error) {
	ds, err := a.dataset(req.DatasetID)
	if err != nil {
		return nil, err
	}
	if req.Limit <= 0 {
		req.Limit = a.Config.DefaultLimit
	}

	params := make(map[string]any, len(req.Filters)+3)
	for k, v := range req.Filters {
		params[k] = v
	}
	if ds.Platform == catalog.PlatformSODA {
		if len(req.Columns) > 0 {
			params["$select"] = strings.Join(req.Columns, ",")
		}
		if req.Where != "" {
			params["$where"] = req.Where
		}
		if req.OrderBy != "" {
			if after, ok := strings.CutPrefix(req.OrderBy, "-"); ok {
				params["$order"] = after + " DESC"
			} else {
				params["$order"] = req.OrderBy + " ASC"
			}
		}
	}

	cacheParams := withPaging(params, map[string]any{"_limit": req.Limit, "_offset": req.Offset})
	if cached, ok, err := a.Cache.Get(ctx, ds.ID, cacheParams, a.Config.CacheTTL); err != nil {
		return nil, err
	} else if ok {
		a.Logger.Debug("cache hit", "dataset", ds.ID)
		return cached, nil
	}

	t, err := a.ClientFor(ds.Platform).Fetch(ctx, ds, params, req.Limit, req.Offset)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ds.ID, err)
	}

	// SODA applies $select server-side; everything else trims locally. Keep
	// the full result when none of the requested columns exist.
	if len(req.Columns) > 0 && ds.Platform != catalog.PlatformSODA {
		if trimmed := t.Select(req.Columns); trimmed != nil {
			t = trimmed
		}
	}

	if t.RowCount() > 0 {
		if _, err := a.Cache.Put(ctx, ds.ID, t, cacheParams); err != nil {
			a.Logger.Warn("cache write failed", "dataset", ds.ID, "error", err)
		}
	}
	return t, nil
}

// LoadRequest downloads a dataset and registers it for SQL.
type LoadRequest struct {
	DatasetID  string
	TableName  string
	Filters    map[string]any
	MaxRecords int
}

// LoadResult describes the registered table.
type LoadResult struct {
	Info      engine.TableInfo
	Table     *table.Table
	FromCache bool
}

// LoadDataset fetches up to MaxRecords records (cache-aware) and registers
// them as a SQL table named after the dataset title unless overridden.
func (a *App) LoadDataset(ctx context.Context, req LoadRequest) (LoadResult, error) {
	ds, err := a.dataset(req.DatasetID)
	if err != nil {
		return LoadResult{}, err
	}
	if req.MaxRecords <= 0 || req.MaxRecords > a.Config.MaxRecords {
		req.MaxRecords = a.Config.MaxRecords
	}
	name := req.TableName
	if name == "" {
		name = ds.SQLName()
		if len(name) > 40 {
			name = name[:40]
		}
	}

	cacheParams := withPaging(req.Filters, map[string]any{"_max_records": req.MaxRecords})

	var t *table.Table
	fromCache := false
	if cached, ok, err := a.Cache.Get(ctx, ds.ID, cacheParams, a.Config.CacheTTL); err != nil {
		return LoadResult{}, err
	} else if ok {
		t = cached
		fromCache = true
	} else {
		t, err = a.ClientFor(ds.Platform).FetchAll(ctx, ds, req.Filters, req.MaxRecords)
		if err != nil {
			return LoadResult{}, fmt.Errorf("fetch %s: %w", ds.ID, err)
		}
		if t.RowCount() > 0 {
			if _, err := a.Cache.Put(ctx, ds.ID, t, cacheParams); err != nil {
				a.Logger.Warn("cache write failed", "dataset", ds.ID, "error", err)
			}
		}
	}

	if t.RowCount() == 0 {
		return LoadResult{}, ErrNoData
	}

	info, err := a.Engine.Register(ctx, name, t, "dataset:"+ds.ID)
	if err != nil {
		return LoadResult{}, err
	}
	return LoadResult{Info: info, Table: t, FromCache: fromCache}, nil
}

// ProviderQuery is an NPI registry search.
type ProviderQuery struct {
	NPI              string
	FirstName        string
	LastName         string
	State            string
	City             string
	Specialty        string
	OrganizationName string
	Limit            int
}

// providerDisplayColumns is the trimmed column set shown for lookups.
var providerDisplayColumns = []string{
	"npi", "basic_first_name", "basic_last_name",
	"basic_organization_name", "basic_credential",
	"practice_city", "practice_state",
	"taxonomy_desc", "enumeration_type",
}

// LookupProvider searches the NPI registry and trims the flattened result to
// the identification columns.
func (a *App) LookupProvider(ctx context.Context, q ProviderQuery) (*table.Table, error) {
	params := map[string]any{}
	set := func(key, value string) {
		if value != "" {
			params[key] = value
		}
	}
	set("number", q.NPI)
	set("first_name", q.FirstName)
	set("last_name", q.LastName)
	set("state", q.State)
	set("city", q.City)
	set("taxonomy_description", q.Specialty)
	set("organization_name", q.OrganizationName)
	if len(params) == 0 {
		return nil, errors.New("at least one search parameter is required")
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}

	ds := catalog.Dataset{ID: "npi-registry", Platform: catalog.PlatformNPI}
	if seeded, ok := a.Catalog.Get("npi-registry"); ok {
		ds = seeded
	}
	t, err := a.ClientFor(catalog.PlatformNPI).Fetch(ctx, ds, params, q.Limit, 0)
	if err != nil {
		return nil, fmt.Errorf("npi lookup: %w", err)
	}
	if trimmed := t.Select(providerDisplayColumns); trimmed != nil {
		return trimmed, nil
	}
	return t, nil
}

// RunSQL executes a statement against the loaded tables.
func (a *App) RunSQL(ctx context.Context, sql string) (*table.Table, error) {
	return a.Engine.Query(ctx, sql)
}

func withPaging(params, paging map[string]any) map[string]any {
	merged := make(map[string]any, len(params)+len(paging))
	for k, v := range params {
		merged[k] = v
	}
	for k, v := range paging {
		merged[k] = v
	}
	return merged
}
