package filestore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// naiveLayouts are zone-less timestamp forms written by older tooling.
// They are read as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

var timestampKeys = map[string]bool{
	"created_at":   true,
	"filled_at":    true,
	"timestamp":    true,
	"last_updated": true,
}

// normalizeTimestamps rewrites naive timestamps in raw as RFC 3339 UTC.
// Numbers pass through as their original text.
func normalizeTimestamps(raw []byte) ([]byte, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if !rewriteTimestamps(doc) {
		return raw, nil
	}
	return json.Marshal(doc)
}

func rewriteTimestamps(node any) bool {
	changed := false
	switch v := node.(type) {
	case map[string]any:
		for k, child := range v {
			if s, ok := child.(string); ok && timestampKeys[k] {
				if fixed, ok := naiveToUTC(s); ok {
					v[k] = fixed
					changed = true
				}
				continue
			}
			if rewriteTimestamps(child) {
				changed = true
			}
		}
	case []any:
		for _, child := range v {
			if rewriteTimestamps(child) {
				changed = true
			}
		}
	}
	return changed
}

func naiveToUTC(s string) (string, bool) {
	if _, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return "", false
	}
	for _, layout := range naiveLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(time.RFC3339Nano), true
		}
	}
	return "", false
}
