// Package metrics normalizes the heterogeneous metric payloads returned by
// platform APIs into one canonical engagement snapshot.
package metrics

import "strconv"

// Raw is a loosely-typed metrics payload as decoded from a platform
// response. Field names vary by platform and API version; the normalizer
// resolves them through ordered candidate lists.
type Raw map[string]interface{}

// GetString safely extracts a string value from a Raw payload.
func (r Raw) GetString(key string) string {
	if val, ok := r[key]; ok {
		switch v := val.(type) {
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int64:
			return strconv.FormatInt(v, 10)
		case int:
			return strconv.Itoa(v)
		}
	}
	return ""
}

// GetInt64 safely extracts an int64 value from a Raw payload.
// JSON numbers arrive as float64; numeric strings are also accepted
// because some platform APIs stringify counters.
func (r Raw) GetInt64(key string) (int64, bool) {
	if val, ok := r[key]; ok {
		switch v := val.(type) {
		case float64:
			return int64(v), true
		case int64:
			return v, true
		case int:
			return int64(v), true
		case string:
			if i, err := strconv.ParseInt(v, 10, 64); err == nil {
				return i, true
			}
		}
	}
	return 0, false
}

// GetFloat64 safely extracts a float64 value from a Raw payload.
func (r Raw) GetFloat64(key string) (float64, bool) {
	if val, ok := r[key]; ok {
		switch v := val.(type) {
		case float64:
			return v, true
		case int64:
			return float64(v), true
		case int:
			return float64(v), true
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// Merge overlays other onto a copy of r. Used when a platform spreads its
// metrics across several responses (e.g. report summary plus insights).
func (r Raw) Merge(other Raw) Raw {
	out := make(Raw, len(r)+len(other))
	for k, v := range r {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}
