package client

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/medlens/medlens/internal/catalog"
	"github.com/medlens/medlens/internal/table"
)

const (
	// cmsDataAPIBase serves datasets whose catalog entry carries no explicit
	// endpoint.
	cmsDataAPIBase = "https://data.cms.gov/data-api/v1/dataset"

	// cmsAPIPageSize is deliberately smaller than the SODA page: the
	// data-api degrades badly on large size values.
	cmsAPIPageSize = 5000
)

// CMSDataAPIClient queries data.cms.gov data-api/v1 endpoints. Pagination
// uses size/offset; filters use the filter[Column]=value convention, and a
// "keyword" param runs full-text search.
type CMSDataAPIClient struct {
	opts Options
}

func NewCMSDataAPIClient(opts Options) *CMSDataAPIClient {
	return &CMSDataAPIClient{opts: opts.withDefaults()}
}

func (c *CMSDataAPIClient) Fetch(ctx context.Context, ds catalog.Dataset, params map[string]any, limit, offset int) (*table.Table, error) {
	records, err := c.fetchRecords(ctx, ds, params, limit, offset)
	if err != nil {
		return nil, err
	}
	return table.FromRecords(records), nil
}

func (c *CMSDataAPIClient) FetchAll(ctx context.Context, ds catalog.Dataset, params map[string]any, maxRecords int) (*table.Table, error) {
	return fetchPages(ctx, cmsAPIPageSize, maxRecords, c.opts.Logger,
		func(ctx context.Context, limit, offset int) ([]map[string]any, error) {
			return c.fetchRecords(ctx, ds, params, limit, offset)
		})
}

func (c *CMSDataAPIClient) fetchRecords(ctx context.Context, ds catalog.Dataset, params map[string]any, limit, offset int) ([]map[string]any, error) {
	query := url.Values{}
	query.Set("size", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))
	for key, value := range params {
		switch {
		case key == "keyword":
			query.Set("keyword", formatValue(value))
		case strings.HasPrefix(key, "filter["):
			query.Set(key, formatValue(value))
		default:
			query.Set("filter["+key+"]", formatValue(value))
		}
	}

	endpoint := strings.TrimSpace(ds.APIEndpoint)
	if endpoint == "" {
		endpoint = cmsDataAPIBase + "/" + ds.ID + "/data"
	}
	body, err := getJSON(ctx, c.opts, endpoint, query, nil)
	if err != nil {
		return nil, err
	}
	return decodeRecords(body)
}
