package expressions

import "strings"

// Resolve recursively substitutes {{dotted.path}} placeholders in data
// against the execution context. A string that is exactly a placeholder is
// replaced by the value the path resolves to; if any path segment is
// missing, or a non-map is reached mid-path, the original placeholder text
// is returned unchanged. Maps and slices are rebuilt recursively; all other
// values pass through as-is. Resolve never fails.
func Resolve(data any, context map[string]any) any {
	switch v := data.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = Resolve(val, context)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = Resolve(val, context)
		}
		return out
	case string:
		if strings.HasPrefix(v, "{{") && strings.HasSuffix(v, "}}") {
			path := strings.TrimSpace(v[2 : len(v)-2])
			if resolved, ok := ResolvePath(path, context); ok {
				return resolved
			}
			return v
		}
		return v
	default:
		return data
	}
}

// ResolvePath descends through nested maps following a dot-delimited path.
// The second return is false when a segment is missing or the value at an
// intermediate segment is not a map.
func ResolvePath(path string, context map[string]any) (any, bool) {
	var current any = context
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
