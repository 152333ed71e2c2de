package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// encodeJSON marshals v for a TEXT column; nil maps and slices become NULL
func encodeJSON(v any) (sql.NullString, error) {
	switch t := v.(type) {
	case nil:
		return sql.NullString{}, nil
	case map[string]any:
		if t == nil {
			return sql.NullString{}, nil
		}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode json column: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// decodeMap unmarshals a nullable TEXT column into a map
func decodeMap(col sql.NullString) (map[string]any, error) {
	if !col.Valid || col.String == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(col.String), &m); err != nil {
		return nil, fmt.Errorf("failed to decode json column: %w", err)
	}
	return m, nil
}

// decodeStrings unmarshals a TEXT column holding a JSON string array
func decodeStrings(col string) ([]string, error) {
	if col == "" {
		return []string{}, nil
	}
	var s []string
	if err := json.Unmarshal([]byte(col), &s); err != nil {
		return nil, fmt.Errorf("failed to decode json array: %w", err)
	}
	if s == nil {
		s = []string{}
	}
	return s, nil
}

// timePtr converts a nullable time column
func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// nullTime converts an optional time for binding
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// now returns the timestamp written by repositories
func now() time.Time {
	return time.Now().UTC()
}
