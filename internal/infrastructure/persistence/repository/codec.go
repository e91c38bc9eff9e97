// Package repository implements the persistence ports over SQLite. Structured
// sub-documents (stage specs, rules, role lists, instance context) are stored
// as JSON columns: they are loaded and saved whole, never queried into.
package repository

import (
	"encoding/json"
	"fmt"
)

// encodeJSON marshals a value for a JSON text column. Nil maps and slices
// encode as SQL-friendly "null".
func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode json column: %w", err)
	}
	return string(data), nil
}

// decodeJSON unmarshals a JSON text column, treating empty as absent.
func decodeJSON(data string, v any) error {
	if data == "" || data == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("decode json column: %w", err)
	}
	return nil
}
