// Package models contains domain models for the Oracle backend.
package models

import (
	"database/sql/driver"
	"fmt"

	json "github.com/goccy/go-json"
)

// scanJSON decodes a JSON column value into dst.
// NULL and empty values leave dst untouched.
func scanJSON(name string, src any, dst any) error {
	if src == nil {
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("%s: unsupported type %T", name, src)
	}

	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, dst)
}

// JSONStringArray is a string slice stored as a JSON text column.
type JSONStringArray []string

// Scan implements sql.Scanner for JSONStringArray.
func (j *JSONStringArray) Scan(src any) error {
	*j = nil
	return scanJSON("JSONStringArray", src, j)
}

// Value implements driver.Valuer for JSONStringArray.
func (j JSONStringArray) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal([]string(j))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// JSONObject is a free-form JSON object stored as a text column.
type JSONObject map[string]any

// Scan implements sql.Scanner for JSONObject.
func (j *JSONObject) Scan(src any) error {
	*j = nil
	return scanJSON("JSONObject", src, j)
}

// Value implements driver.Valuer for JSONObject.
func (j JSONObject) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(map[string]any(j))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
