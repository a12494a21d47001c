package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// QuestionList is stored as a JSON array. Older rows hold a JSON string that
// itself encodes the array; both forms are accepted on read.
type QuestionList []string

func (q QuestionList) Value() (driver.Value, error) {
	if q == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(q))
}

func (q *QuestionList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*q = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("questions: unsupported type %T", src)
	}
	return q.UnmarshalJSON(raw)
}

func (q *QuestionList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return fmt.Errorf("questions: %w", err)
		}
		data = []byte(inner)
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("questions: %w", err)
	}
	*q = list
	return nil
}

// JSON is an opaque jsonb column.
type JSON json.RawMessage

func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return []byte("{}"), nil
	}
	return []byte(j), nil
}

func (j *JSON) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSON(v)
	default:
		return fmt.Errorf("json: unsupported type %T", src)
	}
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return []byte(j), nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	*j = append((*j)[:0], data...)
	return nil
}
