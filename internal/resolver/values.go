package resolver

import (
	"math"
	"reflect"
	"strconv"
	"strings"
)

// truthy follows JavaScript truthiness.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	}
	if n, ok := number(v); ok {
		return n != 0 && !math.IsNaN(n)
	}
	return true
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	return 0, false
}

// text renders a value the way String() would in a browser, with absent
// values as the empty string.
func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = text(e)
		}
		return strings.Join(parts, ",")
	case map[string]any:
		return "[object Object]"
	}
	if n, ok := number(v); ok {
		if n == math.Trunc(n) && math.Abs(n) < 1e21 {
			return strconv.FormatFloat(n, 'f', -1, 64)
		}
		return strconv.FormatFloat(n, 'g', -1, 64)
	}
	return ""
}

const maxCompareDepth = 64

// normalize rewrites every number as float64 so that values decoded from
// JSON and values produced by snippets compare equal.
func normalize(v any) any {
	return normalizeDepth(v, 0)
}

func normalizeDepth(v any, depth int) any {
	if depth > maxCompareDepth {
		return v
	}
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalizeDepth(e, depth+1)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalizeDepth(e, depth+1)
		}
		return out
	}
	if n, ok := number(v); ok {
		return n
	}
	return v
}

func sameValue(a, b any) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

// isEmpty reports values a user has not filled in.
func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}
