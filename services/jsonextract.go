package services

import (
	"bytes"
	"encoding/json"
	"strings"
)

// extractJSON returns the first well-formed JSON value in text that starts
// with open ('[' or '{'). Models often wrap JSON in prose or code fences.
func extractJSON(text string, open byte) (json.RawMessage, error) {
	for i := 0; i < len(text); i++ {
		if text[i] != open {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			continue
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) > 0 && raw[0] == open {
			return raw, nil
		}
	}
	return nil, ErrNoJSON
}

// extractStringArray decodes the first JSON array in text. Every element must be a string.
func extractStringArray(text string) ([]string, error) {
	raw, err := extractJSON(text, '[')
	if err != nil {
		return nil, err
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
