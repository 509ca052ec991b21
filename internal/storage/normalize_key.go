package storage

import (
	"fmt"
	"strings"
)

// NormalizeKey converts a natural-key value to a canonical string form,
// suitable for in-memory lookup maps (e.g. "AA" or "20230305").
//
// Backends must not assume a particular underlying type for keys; drivers
// commonly return []byte for textual columns. This helper keeps lookup maps
// consistent across backends.
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case int64:
		return fmt.Sprintf("%d", t)
	case int:
		return fmt.Sprintf("%d", t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// AsInt64 coerces a scanned value to int64, tolerating the scalar types
// database drivers actually return for integer columns.
func AsInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case float64:
		return int64(t), true
	case []byte:
		var n int64
		if _, err := fmt.Sscan(string(t), &n); err != nil {
			return 0, false
		}
		return n, true
	case string:
		var n int64
		if _, err := fmt.Sscan(t, &n); err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
