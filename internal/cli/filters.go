package cli

import (
	"fmt"
	"strings"
)

// parseFilters converts repeated "column=value" flags into the equality
// filter map the fetch clients expect.
func parseFilters(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filters := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid filter %q: want column=value", pair)
		}
		filters[strings.TrimSpace(key)] = value
	}
	return filters, nil
}
