package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// keyLength is the number of hex characters kept from the digest. 64 bits
// keeps filenames short while making collisions between distinct query
// shapes vanishingly unlikely at this corpus size.
const keyLength = 16

// Key computes the deterministic fingerprint for a cached query result.
// Parameters are serialized as canonical JSON (keys sorted at every level by
// encoding/json) so that two logically identical parameter maps always
// produce the same key regardless of construction order.
func Key(datasetID string, params map[string]any) (string, error) {
	if params == nil {
		params = map[string]any{}
	}
	canonical, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("canonicalize params: %w", err)
	}
	sum := sha256.Sum256([]byte(datasetID + ":" + string(canonical)))
	return hex.EncodeToString(sum[:])[:keyLength], nil
}
