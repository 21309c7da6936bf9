package sandbox

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

type logicFunc = func(params ...any) (any, error)

var logicFunctions = map[string]logicFunc{
	"jl_var": func(p ...any) (any, error) {
		return lookup(param(p, 0), param(p, 1), param(p, 2)), nil
	},
	"jl_missing": func(p ...any) (any, error) {
		return missing(param(p, 0), flatten(param(p, 1))), nil
	},
	"jl_missing_some": func(p ...any) (any, error) {
		keys := flatten(param(p, 2))
		absent := missing(param(p, 0), keys)
		need, _ := toNumber(param(p, 1))
		if float64(len(keys)-len(absent)) >= need {
			return []any{}, nil
		}
		return absent, nil
	},
	"jl_truthy": func(p ...any) (any, error) {
		return truthy(param(p, 0)), nil
	},
	"jl_loose_eq": func(p ...any) (any, error) {
		return looseEqual(param(p, 0), param(p, 1)), nil
	},
	"jl_strict_eq": func(p ...any) (any, error) {
		return strictEqual(param(p, 0), param(p, 1)), nil
	},
	"jl_cmp": func(p ...any) (any, error) {
		op, _ := param(p, 0).(string)
		return compare(op, param(p, 1), param(p, 2)), nil
	},
	"jl_between": func(p ...any) (any, error) {
		op, _ := param(p, 0).(string)
		return compare(op, param(p, 1), param(p, 2)) && compare(op, param(p, 2), param(p, 3)), nil
	},
	"jl_add": func(p ...any) (any, error) {
		sum := 0.0
		for _, v := range p {
			n, _ := toNumber(v)
			sum += n
		}
		return sum, nil
	},
	"jl_sub": func(p ...any) (any, error) {
		a, _ := toNumber(param(p, 0))
		if len(p) < 2 {
			return -a, nil
		}
		b, _ := toNumber(param(p, 1))
		return a - b, nil
	},
	"jl_mul": func(p ...any) (any, error) {
		product := 1.0
		for _, v := range p {
			n, _ := toNumber(v)
			product *= n
		}
		return product, nil
	},
	"jl_div": func(p ...any) (any, error) {
		a, _ := toNumber(param(p, 0))
		b, _ := toNumber(param(p, 1))
		return a / b, nil
	},
	"jl_mod": func(p ...any) (any, error) {
		a, _ := toNumber(param(p, 0))
		b, _ := toNumber(param(p, 1))
		return math.Mod(a, b), nil
	},
	"jl_min": func(p ...any) (any, error) {
		return extreme(p, func(a, b float64) bool { return a < b }), nil
	},
	"jl_max": func(p ...any) (any, error) {
		return extreme(p, func(a, b float64) bool { return a > b }), nil
	},
	"jl_cat": func(p ...any) (any, error) {
		var b strings.Builder
		for _, v := range p {
			b.WriteString(jsString(v))
		}
		return b.String(), nil
	},
	"jl_substr": func(p ...any) (any, error) {
		if len(p) == 0 {
			return "", nil
		}
		return substr(jsString(p[0]), p[1:]), nil
	},
	"jl_in": func(p ...any) (any, error) {
		needle, haystack := param(p, 0), param(p, 1)
		switch h := haystack.(type) {
		case string:
			return strings.Contains(h, jsString(needle)), nil
		case []any:
			for _, v := range h {
				if strictEqual(v, needle) {
					return true, nil
				}
			}
		}
		return false, nil
	},
	"jl_merge": func(p ...any) (any, error) {
		return flatten(p), nil
	},
	"jl_array": func(p ...any) (any, error) {
		if arr, ok := param(p, 0).([]any); ok {
			return arr, nil
		}
		return []any{}, nil
	},
	"jl_first": func(p ...any) (any, error) {
		return param(p, 0), nil
	},
}

func param(p []any, i int) any {
	if i < len(p) {
		return p[i]
	}
	return nil
}

// lookup follows a dotted path. A missing step yields def, while an
// explicit null at the end is returned as null.
func lookup(scope, path, def any) any {
	key := jsString(path)
	if path == nil || key == "" {
		return scope
	}
	cur := scope
	for _, part := range strings.Split(key, ".") {
		if cur == nil {
			return def
		}
		switch c := cur.(type) {
		case map[string]any:
			v, ok := c[part]
			if !ok {
				return def
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(c) {
				return def
			}
			cur = c[i]
		default:
			return def
		}
	}
	return cur
}

func missing(scope any, keys []any) []any {
	out := []any{}
	for _, k := range keys {
		v := lookup(scope, k, nil)
		if v == nil || v == "" {
			out = append(out, k)
		}
	}
	return out
}

func flatten(v any) []any {
	out := []any{}
	switch c := v.(type) {
	case []any:
		for _, e := range c {
			if inner, ok := e.([]any); ok {
				out = append(out, inner...)
			} else {
				out = append(out, e)
			}
		}
	case nil:
	default:
		out = append(out, c)
	}
	return out
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return true
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

// toNumber applies JavaScript's Number() conversion.
func toNumber(v any) (float64, bool) {
	if n, ok := number(v); ok {
		return n, true
	}
	switch x := v.(type) {
	case nil:
		return 0, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN(), false
		}
		return f, true
	case []any:
		switch len(x) {
		case 0:
			return 0, true
		case 1:
			return toNumber(x[0])
		}
	}
	return math.NaN(), false
}

// jsString applies JavaScript's String() conversion.
func jsString(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			if e != nil {
				parts[i] = jsString(e)
			}
		}
		return strings.Join(parts, ",")
	case map[string]any:
		return "[object Object]"
	}
	if n, ok := number(v); ok {
		return formatNumber(n)
	}
	return ""
}

func formatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

func isPrimitive(v any) bool {
	switch v.(type) {
	case []any, map[string]any:
		return false
	}
	return true
}

func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if !isPrimitive(a) && !isPrimitive(b) {
		return false
	}
	if !isPrimitive(a) {
		a = jsString(a)
	}
	if !isPrimitive(b) {
		b = jsString(b)
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return as == bs
		}
	}
	x, okA := toNumber(a)
	y, okB := toNumber(b)
	return okA && okB && x == y
}

func strictEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if x, ok := number(a); ok {
		y, ok := number(b)
		return ok && x == y
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	return false
}

func compare(op string, a, b any) bool {
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			switch op {
			case "<":
				return as < bs
			case "<=":
				return as <= bs
			case ">":
				return as > bs
			case ">=":
				return as >= bs
			}
			return false
		}
	}
	x, okA := toNumber(a)
	y, okB := toNumber(b)
	if !okA || !okB {
		return false
	}
	switch op {
	case "<":
		return x < y
	case "<=":
		return x <= y
	case ">":
		return x > y
	case ">=":
		return x >= y
	}
	return false
}

func extreme(p []any, better func(a, b float64) bool) any {
	if len(p) == 0 {
		return nil
	}
	best, ok := toNumber(p[0])
	if !ok {
		return nil
	}
	for _, v := range p[1:] {
		n, ok := toNumber(v)
		if !ok {
			return nil
		}
		if better(n, best) {
			best = n
		}
	}
	return best
}

// substr follows JavaScript's substr: negative start counts from the end
// and negative length stops that many characters before the end.
func substr(s string, args []any) string {
	runes := []rune(s)
	n := utf8.RuneCountInString(s)
	start := 0
	if len(args) > 0 {
		f, _ := toNumber(args[0])
		start = int(f)
	}
	if start < 0 {
		start = max(n+start, 0)
	}
	start = min(start, n)
	end := n
	if len(args) > 1 {
		f, _ := toNumber(args[1])
		length := int(f)
		if length < 0 {
			end = max(n+length, start)
		} else {
			end = min(start+length, n)
		}
	}
	return string(runes[start:end])
}
