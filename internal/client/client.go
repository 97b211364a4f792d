// Package client implements the HTTP clients for the platforms hosting CMS
// data: Socrata/SODA endpoints, the data.cms.gov data-api, the NPPES NPI
// registry, and direct bulk CSV downloads.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/medlens/medlens/internal/catalog"
	"github.com/medlens/medlens/internal/logging"
	"github.com/medlens/medlens/internal/table"
)

// Client fetches dataset records from a hosting platform.
type Client interface {
	// Fetch retrieves one page of records. Params are platform-specific
	// filters; see the concrete clients for their interpretation.
	Fetch(ctx context.Context, ds catalog.Dataset, params map[string]any, limit, offset int) (*table.Table, error)

	// FetchAll retrieves up to maxRecords records, paginating as needed.
	FetchAll(ctx context.Context, ds catalog.Dataset, params map[string]any, maxRecords int) (*table.Table, error)
}

// Options configures client construction.
type Options struct {
	// HTTPClient defaults to a client with a 60 second timeout.
	HTTPClient *http.Client
	// Logger defaults to a no-op logger.
	Logger logging.Logger
	// AppToken is the optional Socrata application token.
	AppToken string
	// BulkDir is where bulk downloads are stored. Required for the bulk
	// platform.
	BulkDir string
	// BulkMaxAge re-downloads a bulk file once the copy on disk is older
	// than this. Zero keeps downloads forever.
	BulkMaxAge time.Duration
	// RetryBackoff overrides the wait between retries. Nil uses exponential
	// backoff starting at two seconds.
	RetryBackoff func(attempt int) time.Duration
}

func (o Options) withDefaults() Options {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if o.Logger == nil {
		o.Logger = logging.NewNopLogger()
	}
	if o.RetryBackoff == nil {
		o.RetryBackoff = defaultBackoff
	}
	return o
}

// ForPlatform returns the client for a dataset's hosting platform.
func ForPlatform(p catalog.Platform, opts Options) (Client, error) {
	switch p {
	case catalog.PlatformSODA:
		return NewSODAClient(opts), nil
	case catalog.PlatformCMSDataAPI:
		return NewCMSDataAPIClient(opts), nil
	case catalog.PlatformNPI:
		return NewNPIClient(opts), nil
	case catalog.PlatformBulk:
		return NewBulkClient(opts)
	default:
		return nil, fmt.Errorf("no client for platform %q", p)
	}
}

// StatusError is a non-retryable HTTP error response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d", e.URL, e.StatusCode)
}

const maxRetries = 3

func defaultBackoff(attempt int) time.Duration {
	return time.Duration(1<<(attempt+1)) * time.Second
}

// getJSON performs a GET with retry. Rate-limit responses (429) and transport
// errors are retried with backoff; other non-2xx statuses fail immediately.
func getJSON(ctx context.Context, opts Options, rawURL string, query url.Values, header http.Header) ([]byte, error) {
	fullURL := rawURL
	if len(query) > 0 {
		sep := "?"
		if hasQuery(rawURL) {
			sep = "&"
		}
		fullURL = rawURL + sep + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			wait := opts.RetryBackoff(attempt - 1)
			opts.Logger.Warn("request failed, retrying", "url", rawURL, "attempt", attempt, "wait", wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		for k, vals := range header {
			for _, v := range vals {
				req.Header.Set(k, v)
			}
		}

		resp, err := opts.HTTPClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
			continue
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
		}
		return body, nil
	}
	return nil, fmt.Errorf("request to %s failed after %d retries: %w", rawURL, maxRetries, lastErr)
}

func hasQuery(rawURL string) bool {
	u, err := url.Parse(rawURL)
	return err == nil && u.RawQuery != ""
}

// decodeRecords accepts either a bare JSON array of records or an envelope
// object with a "data" array, the two shapes the CMS APIs produce.
func decodeRecords(body []byte) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '{' {
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, fmt.Errorf("decode response envelope: %w", err)
		}
		if len(envelope.Data) == 0 {
			return nil, nil
		}
		trimmed = envelope.Data
	}
	return table.DecodeJSON(trimmed)
}

// formatValue renders a filter value for a query string.
func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}

// fetchPages repeatedly calls fetch until maxRecords records are collected, a
// short page signals the end, or an empty page arrives.
func fetchPages(ctx context.Context, pageSize, maxRecords int, logger logging.Logger,
	fetch func(ctx context.Context, limit, offset int) ([]map[string]any, error),
) (*table.Table, error) {
	var all []map[string]any
	offset := 0
	for len(all) < maxRecords {
		limit := pageSize
		if remaining := maxRecords - len(all); remaining < limit {
			limit = remaining
		}
		page, err := fetch(ctx, limit, offset)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		offset += len(page)
		if len(page) < limit {
			break
		}
		logger.Info("fetched records", "total", len(all))
	}
	return table.FromRecords(all), nil
}
