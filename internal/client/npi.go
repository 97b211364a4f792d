package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/medlens/medlens/internal/catalog"
	"github.com/medlens/medlens/internal/table"
)

const (
	npiBaseURL    = "https://npiregistry.cms.hhs.gov/api/"
	npiAPIVersion = "2.1"

	// npiMaxResults is the registry's hard cap per query; it has no further
	// pagination.
	npiMaxResults = 200
)

// npiSearchParams are the query parameters the registry accepts.
var npiSearchParams = map[string]bool{
	"number":               true,
	"first_name":           true,
	"last_name":            true,
	"organization_name":    true,
	"city":                 true,
	"state":                true,
	"postal_code":          true,
	"taxonomy_description": true,
	"enumeration_type":     true,
}

// NPIClient queries the NPPES NPI registry. Responses are nested; the client
// flattens them to one row per provider with basic_*, practice_*, and
// taxonomy_* column prefixes.
type NPIClient struct {
	opts    Options
	baseURL string
}

func NewNPIClient(opts Options) *NPIClient {
	return &NPIClient{opts: opts.withDefaults(), baseURL: npiBaseURL}
}

func (c *NPIClient) Fetch(ctx context.Context, ds catalog.Dataset, params map[string]any, limit, offset int) (*table.Table, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("npi registry requires at least one search parameter (e.g. last_name, state, taxonomy_description)")
	}
	if offset != 0 {
		return nil, fmt.Errorf("npi registry does not support offsets")
	}
	return c.search(ctx, params, limit)
}

func (c *NPIClient) FetchAll(ctx context.Context, ds catalog.Dataset, params map[string]any, maxRecords int) (*table.Table, error) {
	return c.Fetch(ctx, ds, params, maxRecords, 0)
}

// Lookup fetches a single provider by NPI number.
func (c *NPIClient) Lookup(ctx context.Context, npi string) (*table.Table, error) {
	return c.search(ctx, map[string]any{"number": npi}, 1)
}

func (c *NPIClient) search(ctx context.Context, params map[string]any, limit int) (*table.Table, error) {
	if limit <= 0 || limit > npiMaxResults {
		limit = npiMaxResults
	}
	query := url.Values{}
	query.Set("version", npiAPIVersion)
	query.Set("limit", strconv.Itoa(limit))
	for key, value := range params {
		if !npiSearchParams[key] {
			return nil, fmt.Errorf("npi registry does not accept parameter %q", key)
		}
		if s := formatValue(value); s != "" {
			query.Set(key, s)
		}
	}

	body, err := getJSON(ctx, c.opts, c.baseURL, query, nil)
	if err != nil {
		return nil, err
	}
	return flattenNPIResponse(body)
}

type npiResult struct {
	Number          string           `json:"number"`
	EnumerationType string           `json:"enumeration_type"`
	Basic           map[string]any   `json:"basic"`
	Addresses       []map[string]any `json:"addresses"`
	Taxonomies      []map[string]any `json:"taxonomies"`
}

func flattenNPIResponse(body []byte) (*table.Table, error) {
	var envelope struct {
		Results []npiResult `json:"results"`
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode npi response: %w", err)
	}

	records := make([]map[string]any, 0, len(envelope.Results))
	for _, r := range envelope.Results {
		row := map[string]any{"npi": r.Number}
		for k, v := range r.Basic {
			row["basic_"+k] = v
		}
		for _, addr := range r.Addresses {
			if purpose, _ := addr["address_purpose"].(string); purpose == "LOCATION" {
				for k, v := range addr {
					row["practice_"+k] = v
				}
				break
			}
		}
		if len(r.Taxonomies) > 0 {
			for k, v := range r.Taxonomies[0] {
				row["taxonomy_"+k] = v
			}
		}
		row["enumeration_type"] = r.EnumerationType
		records = append(records, row)
	}
	return table.FromRecords(records), nil
}
