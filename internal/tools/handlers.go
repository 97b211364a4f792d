package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/medlens/medlens/internal/app"
	"github.com/medlens/medlens/internal/catalog"
	"github.com/medlens/medlens/internal/engine"
)

// availableDomains is surfaced when a search comes back empty.
var availableDomains = []catalog.Domain{
	catalog.DomainHospitalCompare, catalog.DomainNursingHome,
	catalog.DomainPhysicianCompare, catalog.DomainMedicareProvider,
	catalog.DomainMedicarePartD, catalog.DomainProgramStatistics,
	catalog.DomainOpenPayments, catalog.DomainMedicaid,
	catalog.DomainNPIRegistry, catalog.DomainCostReports,
	catalog.DomainHospitalReadmissions, catalog.DomainQualityMeasures,
	catalog.DomainSpending,
}

func (r *Registry) registerBuiltins() {
	r.Register(Tool{
		Definition: Definition{
			Name: "search_datasets",
			Description: "Search available CMS healthcare datasets by keyword or domain. " +
				"Returns dataset metadata including title, description, and key columns. " +
				"Use this to discover what data is available before querying.",
			InputSchema: objectSchema(map[string]any{
				"query":  stringProp("Search term, e.g. 'hospital ratings' or 'Part D prescriber'"),
				"domain": stringProp("Filter by data domain, e.g. 'hospital_compare' or 'spending'"),
				"limit":  intProp("Max results to return (default 10)"),
			}, nil),
		},
		Handler: r.searchDatasets,
	})
	r.Register(Tool{
		Definition: Definition{
			Name: "describe_dataset",
			Description: "Get detailed metadata for a specific dataset: all columns with types and " +
				"examples, plus which other datasets can be joined with it.",
			InputSchema: objectSchema(map[string]any{
				"dataset_id": stringProp("Dataset identifier, e.g. 'xubh-q36u'"),
			}, []string{"dataset_id"}),
		},
		Handler: r.describeDataset,
	})
	r.Register(Tool{
		Definition: Definition{
			Name: "query_dataset",
			Description: "Fetch records from a CMS dataset with optional filtering. Use 'filters' for " +
				"simple equality matches; SODA datasets also accept a SoQL 'where' clause and 'order_by'.",
			InputSchema: objectSchema(map[string]any{
				"dataset_id": stringProp("Dataset identifier"),
				"filters":    objectProp("Column=value equality filters, e.g. {\"state\": \"CA\"}"),
				"columns":    stringArrayProp("Columns to return; empty returns all"),
				"limit":      intProp("Max records to return (default 100)"),
				"offset":     intProp("Starting record for pagination"),
				"order_by":   stringProp("Sort column; prefix with '-' for descending (SODA only)"),
				"where":      stringProp("Raw SoQL WHERE clause (SODA only)"),
			}, []string{"dataset_id"}),
		},
		Handler: r.queryDataset,
	})
	r.Register(Tool{
		Definition: Definition{
			Name: "load_dataset",
			Description: "Download a dataset and register it as a SQL table for run_sql queries. " +
				"Results are cached locally as Parquet files for fast re-use.",
			InputSchema: objectSchema(map[string]any{
				"dataset_id":  stringProp("Dataset identifier"),
				"table_name":  stringProp("Name for the SQL table; derived from the title if empty"),
				"filters":     objectProp("Pre-filters applied during download"),
				"max_records": intProp("Maximum records to download (default 50000)"),
			}, []string{"dataset_id"}),
		},
		Handler: r.loadDataset,
	})
	r.Register(Tool{
		Definition: Definition{
			Name: "run_sql",
			Description: "Execute a SQL query against loaded datasets. Supports joins, aggregates, " +
				"CTEs, and window functions. Load tables first with load_dataset.",
			InputSchema: objectSchema(map[string]any{
				"sql": stringProp("SQL statement to execute"),
			}, []string{"sql"}),
		},
		Handler: r.runSQL,
	})
	r.Register(Tool{
		Definition: Definition{
			Name: "list_loaded_tables",
			Description: "List all datasets currently loaded as SQL tables, with row counts, " +
				"columns, and sources.",
			InputSchema: objectSchema(map[string]any{}, nil),
		},
		Handler: r.listLoadedTables,
	})
	r.Register(Tool{
		Definition: Definition{
			Name: "lookup_provider",
			Description: "Look up a healthcare provider in the NPI Registry by NPI number, name, " +
				"location, or specialty.",
			InputSchema: objectSchema(map[string]any{
				"npi":               stringProp("NPI number (10 digits) for exact lookup"),
				"first_name":        stringProp("Provider first name"),
				"last_name":         stringProp("Provider last name"),
				"state":             stringProp("State abbreviation, e.g. 'CA'"),
				"city":              stringProp("City name"),
				"specialty":         stringProp("Taxonomy/specialty, e.g. 'Internal Medicine'"),
				"organization_name": stringProp("Organization name (Type 2 NPIs)"),
				"limit":             intProp("Max results (API max 200, default 10)"),
			}, nil),
		},
		Handler: r.lookupProvider,
	})
	r.Register(Tool{
		Definition: Definition{
			Name: "manage_cache",
			Description: "Manage the local data cache: 'stats' shows totals, 'list' shows cached " +
				"entries, 'clear' removes entries (optionally only one dataset's).",
			InputSchema: objectSchema(map[string]any{
				"action":     stringProp("One of 'stats', 'list', 'clear' (default 'stats')"),
				"dataset_id": stringProp("Restrict 'clear' to one dataset"),
			}, nil),
		},
		Handler: r.manageCache,
	})
}

func (r *Registry) searchDatasets(ctx context.Context, args json.RawMessage) (any, error) {
	var req struct {
		Query  string `json:"query"`
		Domain string `json:"domain"`
		Limit  int    `json:"limit"`
	}
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}

	results := r.app.Catalog.Search(req.Query, req.Domain, req.Limit)
	if len(results) == 0 {
		return map[string]any{
			"message":           "No datasets found. Try broader search terms.",
			"available_domains": availableDomains,
			"tip":               "Try: 'hospital', 'nursing home', 'Medicare', 'drug', 'provider', 'spending'",
		}, nil
	}

	out := make([]map[string]any, 0, len(results))
	for _, ds := range results {
		keyColumns := make([]string, 0, 8)
		for _, c := range ds.Columns {
			if len(keyColumns) == 8 {
				break
			}
			keyColumns = append(keyColumns, c.Name)
		}
		out = append(out, map[string]any{
			"id":          ds.ID,
			"title":       ds.Title,
			"description": truncate(ds.Description, 200),
			"host":        ds.Host,
			"platform":    ds.Platform,
			"domain":      ds.Domain,
			"key_columns": keyColumns,
			"join_keys":   ds.JoinKeys,
			"notes":       truncate(ds.Notes, 150),
		})
	}
	return map[string]any{"count": len(out), "datasets": out}, nil
}

func (r *Registry) describeDataset(ctx context.Context, args json.RawMessage) (any, error) {
	var req struct {
		DatasetID string `json:"dataset_id"`
	}
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}

	ds, ok := r.app.Catalog.Get(req.DatasetID)
	if !ok {
		ids := make([]string, 0, r.app.Catalog.Len())
		for _, d := range r.app.Catalog.All() {
			ids = append(ids, d.ID)
		}
		return errorPayload(fmt.Sprintf("dataset %q not found", req.DatasetID),
			map[string]any{"available_ids": ids}), nil
	}

	joinable := make([]map[string]any, 0)
	for _, cand := range r.app.Catalog.Joinable(ds.ID) {
		joinable = append(joinable, map[string]any{
			"id":       cand.Dataset.ID,
			"title":    cand.Dataset.Title,
			"join_key": cand.Key,
		})
	}

	return map[string]any{
		"id":                ds.ID,
		"title":             ds.Title,
		"description":       ds.Description,
		"host":              ds.Host,
		"platform":          ds.Platform,
		"domain":            ds.Domain,
		"api_endpoint":      ds.APIEndpoint,
		"temporal":          ds.Temporal,
		"notes":             ds.Notes,
		"columns":           ds.Columns,
		"join_keys":         ds.JoinKeys,
		"sql_name":          ds.SQLName(),
		"joinable_datasets": joinable,
	}, nil
}

func (r *Registry) queryDataset(ctx context.Context, args json.RawMessage) (any, error) {
	var req struct {
		DatasetID string         `json:"dataset_id"`
		Filters   map[string]any `json:"filters"`
		Columns   []string       `json:"columns"`
		Limit     int            `json:"limit"`
		Offset    int            `json:"offset"`
		OrderBy   string         `json:"order_by"`
		Where     string         `json:"where"`
	}
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	if req.Limit <= 0 {
		req.Limit = 100
	}

	t, err := r.app.QueryDataset(ctx, app.QueryRequest{
		DatasetID: req.DatasetID,
		Filters:   req.Filters,
		Columns:   req.Columns,
		Limit:     req.Limit,
		Offset:    req.Offset,
		OrderBy:   req.OrderBy,
		Where:     req.Where,
	})
	if err != nil {
		return domainError(err), nil
	}
	return tableResult(t, req.Limit), nil
}

func (r *Registry) loadDataset(ctx context.Context, args json.RawMessage) (any, error) {
	var req struct {
		DatasetID  string         `json:"dataset_id"`
		TableName  string         `json:"table_name"`
		Filters    map[string]any `json:"filters"`
		MaxRecords int            `json:"max_records"`
	}
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}

	res, err := r.app.LoadDataset(ctx, app.LoadRequest{
		DatasetID:  req.DatasetID,
		TableName:  req.TableName,
		Filters:    req.Filters,
		MaxRecords: req.MaxRecords,
	})
	if err != nil {
		return domainError(err), nil
	}

	return map[string]any{
		"table_name": res.Info.Name,
		"rows":       res.Info.Rows,
		"columns":    res.Table.ColumnNames(),
		"from_cache": res.FromCache,
		"sample":     res.Table.Head(3).Records(),
		"tip":        fmt.Sprintf("Use run_sql('SELECT * FROM %s LIMIT 10') to query this table.", res.Info.Name),
	}, nil
}

func (r *Registry) runSQL(ctx context.Context, args json.RawMessage) (any, error) {
	var req struct {
		SQL string `json:"sql"`
	}
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}

	loaded, err := r.app.Engine.List()
	if err != nil {
		return nil, err
	}
	if len(loaded) == 0 {
		return errorPayload("No tables loaded. Use load_dataset first.", map[string]any{
			"tip": "Example: load_dataset with dataset_id 'xubh-q36u' and table_name 'hospitals'",
		}), nil
	}

	t, err := r.app.RunSQL(ctx, req.SQL)
	if err != nil {
		extra := map[string]any{
			"available_tables": tableSummaries(loaded),
			"tip":              "Check column names with list_loaded_tables.",
		}
		var qerr *engine.QueryError
		if errors.As(err, &qerr) && len(qerr.Missing) > 0 {
			extra["unregistered_tables"] = qerr.Missing
		}
		return errorPayload("SQL error: "+err.Error(), extra), nil
	}
	return tableResult(t, 500), nil
}

func (r *Registry) listLoadedTables(ctx context.Context, args json.RawMessage) (any, error) {
	loaded, err := r.app.Engine.List()
	if err != nil {
		return nil, err
	}
	if len(loaded) == 0 {
		return map[string]any{
			"message": "No tables loaded yet.",
			"tip":     "Use load_dataset to load a dataset as a SQL table.",
		}, nil
	}
	return tableSummaries(loaded), nil
}

func (r *Registry) lookupProvider(ctx context.Context, args json.RawMessage) (any, error) {
	var req struct {
		NPI              string `json:"npi"`
		FirstName        string `json:"first_name"`
		LastName         string `json:"last_name"`
		State            string `json:"state"`
		City             string `json:"city"`
		Specialty        string `json:"specialty"`
		OrganizationName string `json:"organization_name"`
		Limit            int    `json:"limit"`
	}
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}

	t, err := r.app.LookupProvider(ctx, app.ProviderQuery{
		NPI:              req.NPI,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		State:            req.State,
		City:             req.City,
		Specialty:        req.Specialty,
		OrganizationName: req.OrganizationName,
		Limit:            req.Limit,
	})
	if err != nil {
		return domainError(err), nil
	}
	if t.RowCount() == 0 {
		return map[string]any{"message": "No providers found matching your criteria."}, nil
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}
	return tableResult(t, req.Limit), nil
}

func (r *Registry) manageCache(ctx context.Context, args json.RawMessage) (any, error) {
	var req struct {
		Action    string `json:"action"`
		DatasetID string `json:"dataset_id"`
	}
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}

	switch req.Action {
	case "", "stats":
		return r.app.Cache.Stats(), nil
	case "list":
		return r.app.Cache.List(), nil
	case "clear":
		removed, err := r.app.Cache.Clear(ctx, req.DatasetID)
		if err != nil {
			return domainError(err), nil
		}
		return map[string]any{"message": fmt.Sprintf("Cleared %d cache entries.", removed)}, nil
	default:
		return errorPayload(fmt.Sprintf("unknown action %q; use 'stats', 'list', or 'clear'", req.Action), nil), nil
	}
}

func tableSummaries(loaded []engine.TableInfo) map[string]any {
	summary := make(map[string]any, len(loaded))
	for _, info := range loaded {
		names := make([]string, len(info.Columns))
		for i, c := range info.Columns {
			names[i] = c.Name
		}
		summary[info.Name] = map[string]any{
			"rows":    info.Rows,
			"columns": names,
			"source":  info.Source,
		}
	}
	return summary
}

// domainError converts an application error into a structured payload so the
// agent sees actionable detail instead of an opaque failure.
func domainError(err error) map[string]any {
	var nferr *app.DatasetNotFoundError
	if errors.As(err, &nferr) {
		return errorPayload(err.Error(), map[string]any{"available_ids": nferr.Available})
	}
	return errorPayload(err.Error(), nil)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func objectSchema(props map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func intProp(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

func objectProp(desc string) map[string]any {
	return map[string]any{"type": "object", "description": desc}
}

func stringArrayProp(desc string) map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"description": desc,
	}
}
