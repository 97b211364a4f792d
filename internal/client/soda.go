package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/medlens/medlens/internal/catalog"
	"github.com/medlens/medlens/internal/table"
)

// sodaMaxPage is the Socrata per-request record cap.
const sodaMaxPage = 50000

// SODAClient queries Socrata SODA endpoints (data.medicare.gov,
// openpaymentsdata.cms.gov, SODA datasets on data.cms.gov).
//
// Params starting with "$" are passed through as SoQL clauses ($where,
// $select, $group, $order); anything else becomes a simple column=value
// filter.
type SODAClient struct {
	opts Options
}

// NewSODAClient builds a SODA client. Set Options.AppToken to raise the
// anonymous rate limits.
func NewSODAClient(opts Options) *SODAClient {
	return &SODAClient{opts: opts.withDefaults()}
}

func (c *SODAClient) Fetch(ctx context.Context, ds catalog.Dataset, params map[string]any, limit, offset int) (*table.Table, error) {
	records, err := c.fetchRecords(ctx, ds, params, limit, offset)
	if err != nil {
		return nil, err
	}
	return table.FromRecords(records), nil
}

func (c *SODAClient) FetchAll(ctx context.Context, ds catalog.Dataset, params map[string]any, maxRecords int) (*table.Table, error) {
	return fetchPages(ctx, sodaMaxPage, maxRecords, c.opts.Logger,
		func(ctx context.Context, limit, offset int) ([]map[string]any, error) {
			return c.fetchRecords(ctx, ds, params, limit, offset)
		})
}

func (c *SODAClient) fetchRecords(ctx context.Context, ds catalog.Dataset, params map[string]any, limit, offset int) ([]map[string]any, error) {
	if limit > sodaMaxPage {
		limit = sodaMaxPage
	}
	query := url.Values{}
	query.Set("$limit", strconv.Itoa(limit))
	query.Set("$offset", strconv.Itoa(offset))
	for key, value := range params {
		query.Set(key, formatValue(value))
	}

	var header http.Header
	if c.opts.AppToken != "" {
		header = http.Header{"X-App-Token": []string{c.opts.AppToken}}
	}

	body, err := getJSON(ctx, c.opts, strings.TrimSpace(ds.APIEndpoint), query, header)
	if err != nil {
		return nil, err
	}
	return decodeRecords(body)
}
