package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// decodeObject decodes a JSON object into a map. null and empty input decode
// to an empty map. Numbers stay json.Number so that they are written back
// exactly as they were read.
func decodeObject(b []byte) (map[string]any, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("data payload must be a JSON object: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("data payload must be a single JSON object")
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// takeString removes key from raw and returns it when it holds a non-empty
// string. Other values, the empty string included, stay in raw so they
// round-trip through Extra; a typed field set later overrides them on encode.
func takeString(raw map[string]any, key string) string {
	v, ok := raw[key].(string)
	if !ok || v == "" {
		return ""
	}
	delete(raw, key)
	return v
}

func remaining(raw map[string]any) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func putString(out map[string]any, key, value string) {
	if value != "" {
		out[key] = value
	}
}

func cloneExtra(extra map[string]any) map[string]any {
	if extra == nil {
		return nil
	}
	out := make(map[string]any, len(extra))
	for k, v := range extra {
		out[k] = v
	}
	return out
}
