package standardize

import (
	"fmt"
	"strings"
)

// mapValue digs a nested map out of a result field
func mapValue(m map[string]interface{}, key string) map[string]interface{} {
	if v, ok := m[key].(map[string]interface{}); ok {
		return v
	}
	return nil
}

// sliceValue digs a sequence out of a result field
func sliceValue(m map[string]interface{}, key string) []interface{} {
	if v, ok := m[key].([]interface{}); ok {
		return v
	}
	return nil
}

// stringValue reads a field as a string, rendering scalar types
func stringValue(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		// JSON numbers decode as float64; render integers without a
		// trailing .0
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		// Nested maps and sequences are not scalar report material
		return ""
	}
}

// boolValue reads a field as a boolean, accepting textual forms
func boolValue(m map[string]interface{}, key string) bool {
	v, ok := m[key]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		lower := strings.ToLower(strings.TrimSpace(t))
		return lower == "true" || lower == "yes" || lower == "1"
	case float64:
		return t != 0
	default:
		return false
	}
}

// containsAny reports whether s contains one of the keywords,
// case-insensitive
func containsAny(s string, keywords ...string) bool {
	lower := strings.ToLower(s)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// equalsAny reports whether s equals one of the values,
// case-insensitive after trimming
func equalsAny(s string, values ...string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(s))
	for _, v := range values {
		if trimmed == v {
			return true
		}
	}
	return false
}
