package formatter

import (
	"bytes"
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/samber/lo"

	"template-service/internal/form"
)

const (
	PasswordMask  = "--- PASSWORD ---"
	ProtectedMask = "--- PROTECTED ---"
)

// Value is one formatted field. Skip marks fields that have no row of
// their own in a table, such as non-input components.
type Value struct {
	Label string
	Value string
	Skip  bool
}

// Field is what a strategy sees: the component, its raw value (falsy
// values already replaced by ""), the data it was read from and the
// surrounding component set.
type Field struct {
	Component  *form.Component
	Key        string
	Raw        any
	Data       any
	Components *Components
}

// Strategy renders one component type. Returning false drops the field.
type Strategy func(r *Registry, f Field) (any, bool)

// Registry maps component types to strategies.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	policy     *bluemonday.Policy
	location   *time.Location
}

type Option func(*Registry)

// WithLocation sets the zone dates are shown in. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(r *Registry) {
		if loc != nil {
			r.location = loc
		}
	}
}

// New returns a registry with the built-in strategies.
func New(opts ...Option) *Registry {
	r := &Registry{
		strategies: make(map[string]Strategy),
		policy:     linkPolicy(),
		location:   time.UTC,
	}
	for typ, s := range builtins {
		r.strategies[typ] = s
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register installs or replaces the strategy for a component type.
func (r *Registry) Register(typ string, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[typ] = s
}

func (r *Registry) strategy(typ string) Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.strategies[typ]; ok {
		return s
	}
	return formatDefault
}

// Label is the label, placeholder or key of a component, in that order.
func Label(c *form.Component) string {
	return lo.CoalesceOrEmpty(c.Label, c.Placeholder, c.Key)
}

// ComponentLabel returns the label of the component at key, or key itself
// when the component is unknown.
func ComponentLabel(key string, comps *Components) string {
	c := comps.Get(key)
	if c == nil {
		return key
	}
	return Label(c)
}

// FormatValue renders the value at key in data using the component stored
// under the same key.
func (r *Registry) FormatValue(data any, key string, comps *Components) Value {
	return r.formatComponent(data, key, comps.Get(key), comps)
}

// Format renders raw as the value of a single component.
func (r *Registry) Format(c *form.Component, raw any) Value {
	if c == nil {
		return Value{Value: stringify(raw)}
	}
	data := map[string]any{c.Key: raw}
	comps := newComponents()
	comps.add(c.Key, c)
	return r.formatComponent(data, c.Key, c, comps)
}

func (r *Registry) formatComponent(data any, key string, c *form.Component, comps *Components) Value {
	raw, _ := form.Get(data, key)
	if c != nil && c.Type == "checkbox" && str(c.Attrs["inputType"]) == "radio" && str(c.Attrs["name"]) != "" {
		raw = radioChecked(data, key, c)
	}
	if !truthy(raw) {
		raw = ""
	}
	if c == nil {
		s, ok := raw.(string)
		return Value{Label: key, Value: s, Skip: !ok}
	}
	return r.render(c, key, raw, data, comps)
}

func (r *Registry) render(c *form.Component, key string, raw, data any, comps *Components) Value {
	v := Value{Label: Label(c)}
	if c.Multiple {
		single := *c
		single.Multiple = false
		parts := lo.Map(asList(raw), func(item any, _ int) string {
			if !truthy(item) {
				item = ""
			}
			return r.render(&single, key, item, data, comps).Value
		})
		v.Value = strings.Join(parts, ", ")
		return v
	}

	out, ok := r.strategy(c.Type)(r, Field{Component: c, Key: key, Raw: raw, Data: data, Components: comps})
	if !ok {
		return Value{Skip: true}
	}
	if c.Protected {
		out = ProtectedMask
	}
	v.Value = stringify(out)
	return v
}

// radioChecked resolves a checkbox rendered as a radio: the shared value
// lives under the checkbox's name, next to the checkbox itself.
func radioChecked(data any, key string, c *form.Component) bool {
	scope := data
	if prefix := strings.TrimSuffix(key, c.Key); prefix != "" {
		scope, _ = form.Get(data, strings.TrimSuffix(prefix, "."))
	}
	saved, _ := form.Get(scope, str(c.Attrs["name"]))
	return truthy(saved) && reflect.DeepEqual(saved, c.Attrs["value"])
}

func asList(v any) []any {
	switch x := v.(type) {
	case []any:
		return x
	case map[string]any:
		return lo.Values(x)
	case nil, string:
		if x == nil || x == "" {
			return nil
		}
	}
	return []any{v}
}

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
	}
	return 0, false
}

// stringify turns a rendered value into text: falsy values become empty,
// objects and arrays become JSON.
func stringify(v any) string {
	if !truthy(v) {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return "true"
	case map[string]any, []any:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(x); err != nil {
			return ""
		}
		return strings.TrimSuffix(buf.String(), "\n")
	}
	if n, ok := number(v); ok {
		return formatNumber(n)
	}
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return ""
}

func formatNumber(n float64) string {
	if n == math.Trunc(n) && math.Abs(n) < 1e21 {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

func str(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// strictEqual compares scalars the way === does. Objects are never equal.
func strictEqual(a, b any) bool {
	if na, ok := number(a); ok {
		nb, ok := number(b)
		return ok && na == nb
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case nil:
		return b == nil
	}
	return false
}
