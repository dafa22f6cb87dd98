package store

import (
	"encoding/json"
	"fmt"

	"github.com/golang/snappy"
)

// encodeJSON marshals v and compresses it. A nil map encodes to nil so the
// column stays NULL.
func encodeJSON(v interface{}) ([]byte, error) {
	if m, ok := v.(map[string]interface{}); ok && m == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("store: failed to marshal payload: %w", err)
	}
	return snappy.Encode(nil, raw), nil
}

// decodeJSON reverses encodeJSON. Empty input leaves v untouched.
func decodeJSON(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return fmt.Errorf("store: snappy decompress failed: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("store: failed to unmarshal payload: %w", err)
	}
	return nil
}
