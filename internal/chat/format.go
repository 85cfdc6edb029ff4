package chat

import "time"

const canonicalTimestampLayout = "2006-01-02 15:04:05"

// Layouts the remote executor has been observed to emit for
// timestamp-typed columns. Bare dates are deliberately absent.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
}

// NormalizeTimestamps rewrites every timestamp-shaped value in the result
// rows into the canonical textual form, in UTC. Rows are copied, not
// mutated, so the executor result stays untouched.
func NormalizeTimestamps(rows []map[string]any) []map[string]any {
	if len(rows) == 0 {
		return rows
	}
	normalized := make([]map[string]any, len(rows))
	for i, row := range rows {
		out := make(map[string]any, len(row))
		for key, value := range row {
			out[key] = normalizeValue(value)
		}
		normalized[i] = out
	}
	return normalized
}

func normalizeValue(value any) any {
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Format(canonicalTimestampLayout)
	case string:
		if ts, ok := parseTimestamp(v); ok {
			return ts.UTC().Format(canonicalTimestampLayout)
		}
	}
	return value
}

func parseTimestamp(raw string) (time.Time, bool) {
	// Cheap shape check so ordinary strings and bare dates skip the
	// layout loop.
	if len(raw) < 19 || raw[4] != '-' || raw[7] != '-' {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
