package form

import (
	"sort"
	"strconv"
	"strings"
)

// SplitPath turns "a.b[0].c" into [a b 0 c].
func SplitPath(path string) []string {
	path = strings.NewReplacer("[", ".", "]", "").Replace(path)
	parts := strings.Split(path, ".")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Get reads the value at path from nested maps and slices.
func Get(data any, path string) (any, bool) {
	cur := data
	for _, part := range SplitPath(path) {
		switch c := cur.(type) {
		case map[string]any:
			v, ok := c[part]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(c) {
				return nil, false
			}
			cur = c[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Search looks key up as a path in data and, failing that, by name through
// nested objects, depth first in key order. Arrays are not searched. Nil
// values count as missing.
func Search(data map[string]any, key string) (any, bool) {
	if v, ok := Get(data, key); ok && v != nil {
		return v, true
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if nested, ok := data[k].(map[string]any); ok {
			if v, ok := Search(nested, key); ok {
				return v, true
			}
		}
	}
	return nil, false
}

// Set writes v at path, creating intermediate objects as needed.
func Set(data map[string]any, path string, v any) {
	parts := SplitPath(path)
	if len(parts) == 0 {
		return
	}
	cur := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}
