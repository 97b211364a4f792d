package catalog

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed seed_catalog.yaml
var seedCatalog []byte

// Catalog is an in-memory dataset registry loaded from the embedded seed
// file. It is immutable after construction and safe for concurrent reads.
type Catalog struct {
	datasets map[string]Dataset
	order    []string
}

// New loads the embedded seed catalog.
func New() (*Catalog, error) {
	return Parse(seedCatalog)
}

// Parse builds a catalog from raw YAML. Duplicate dataset IDs are an error.
func Parse(data []byte) (*Catalog, error) {
	var entries []Dataset
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c := &Catalog{datasets: make(map[string]Dataset, len(entries))}
	for _, ds := range entries {
		if ds.ID == "" {
			return nil, fmt.Errorf("parse catalog: dataset %q has no id", ds.Title)
		}
		if _, dup := c.datasets[ds.ID]; dup {
			return nil, fmt.Errorf("parse catalog: duplicate dataset id %q", ds.ID)
		}
		c.datasets[ds.ID] = ds
		c.order = append(c.order, ds.ID)
	}
	return c, nil
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int { return len(c.order) }

// Get returns the dataset with the given ID.
func (c *Catalog) Get(id string) (Dataset, bool) {
	ds, ok := c.datasets[id]
	return ds, ok
}

// All returns every dataset in seed order.
func (c *Catalog) All() []Dataset {
	out := make([]Dataset, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.datasets[id])
	}
	return out
}

// Search matches datasets against a free-text query and an optional domain
// filter. The query matches as a whole substring first; if that fails, every
// word must appear somewhere in the dataset's searchable text. An empty query
// matches everything in the domain.
func (c *Catalog) Search(queryText, domain string, limit int) []Dataset {
	if limit <= 0 {
		limit = 20
	}
	q := strings.ToLower(strings.TrimSpace(queryText))
	domainFilter := strings.ToLower(strings.TrimSpace(domain))

	var results []Dataset
	for _, id := range c.order {
		ds := c.datasets[id]
		if domainFilter != "" && !matchesDomain(ds, domainFilter) {
			continue
		}
		if q != "" && !matchesQuery(ds, q) {
			continue
		}
		results = append(results, ds)
		if len(results) >= limit {
			break
		}
	}
	return results
}

func matchesDomain(ds Dataset, domainFilter string) bool {
	if string(ds.Domain) == domainFilter {
		return true
	}
	return strings.Contains(strings.ToLower(ds.Host), domainFilter)
}

func matchesQuery(ds Dataset, q string) bool {
	searchable := searchText(ds)
	if strings.Contains(searchable, q) {
		return true
	}
	for _, word := range strings.Fields(q) {
		if !strings.Contains(searchable, word) {
			return false
		}
	}
	return true
}

func searchText(ds Dataset) string {
	parts := []string{
		strings.ToLower(ds.Title),
		strings.ToLower(ds.Description),
		string(ds.Domain),
		strings.ToLower(ds.Notes),
	}
	for _, k := range ds.Keywords {
		parts = append(parts, strings.ToLower(k))
	}
	return strings.Join(parts, " ")
}

// JoinCandidate pairs a dataset with the key it can be joined on.
type JoinCandidate struct {
	Dataset Dataset
	Key     string
}

// Joinable finds datasets sharing a join key with the given dataset. A
// candidate matches if it declares the same join key, or if any of its column
// names contains the key as a substring.
func (c *Catalog) Joinable(id string) []JoinCandidate {
	source, ok := c.datasets[id]
	if !ok {
		return nil
	}
	var out []JoinCandidate
	for _, otherID := range c.order {
		if otherID == id {
			continue
		}
		ds := c.datasets[otherID]
		if key, ok := joinKey(source, ds); ok {
			out = append(out, JoinCandidate{Dataset: ds, Key: key})
		}
	}
	return out
}

// joinKey matches case-insensitively; CMS files mix snake_case and
// abbreviated CamelCase column names for the same identifiers.
func joinKey(source, ds Dataset) (string, bool) {
	for _, key := range source.JoinKeys {
		lower := strings.ToLower(key)
		for _, other := range ds.JoinKeys {
			if strings.EqualFold(key, other) {
				return key, true
			}
		}
		for _, col := range ds.Columns {
			if strings.Contains(strings.ToLower(col.Name), lower) {
				return key, true
			}
		}
	}
	return "", false
}
