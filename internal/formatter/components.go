package formatter

import (
	"sort"

	"template-service/internal/form"
)

// Components is an ordered set of components keyed by data path.
type Components struct {
	paths  []string
	byPath map[string]*form.Component
}

func newComponents() *Components {
	return &Components{byPath: make(map[string]*form.Component)}
}

func (cs *Components) add(path string, c *form.Component) {
	if _, ok := cs.byPath[path]; !ok {
		cs.paths = append(cs.paths, path)
	}
	cs.byPath[path] = c
}

// Get returns the component at path, or nil.
func (cs *Components) Get(path string) *form.Component {
	if cs == nil {
		return nil
	}
	return cs.byPath[path]
}

// Paths returns the data paths in schema order.
func (cs *Components) Paths() []string {
	if cs == nil {
		return nil
	}
	return cs.paths
}

func (cs *Components) Len() int {
	return len(cs.Paths())
}

// Flatten lists the components that render as one table row each.
// Layout components dissolve into their children and containers render
// flat. Grids and autocomplete addresses are kept whole. Buttons and
// hidden fields are dropped.
func Flatten(data any, components []*form.Component) *Components {
	out := newComponents()
	form.Walk(components, func(c *form.Component, path string) form.WalkResult {
		autoAddress := isAutoAddress(data, c, path)
		dataArray := c.Type == "datagrid" || c.Type == "editgrid" || c.Tree
		hasChildren := c.HasChildren() && !autoAddress

		if !dataArray && hasChildren {
			return form.Continue
		}
		switch c.Type {
		case "container", "button", "hidden":
			return form.Continue
		}

		out.add(path, c)
		if autoAddress || dataArray {
			return form.SkipChildren
		}
		return form.Continue
	})
	return out
}

// isAutoAddress reports an address component whose parts are not entered
// by hand.
func isAutoAddress(data any, c *form.Component, path string) bool {
	if c.Type != "address" {
		return false
	}
	if path == "" {
		path = c.Key
	}
	v, _ := form.Get(data, path)
	address, ok := v.(map[string]any)
	if !ok {
		return true
	}
	mode, _ := address["mode"].(string)
	return mode == "" || mode == "autocomplete"
}

// ComponentsFrom accepts a component list, a schema, or a map of data path
// to component definition as passed by template authors. Maps are ordered
// by path.
func ComponentsFrom(data any, v any) *Components {
	switch cs := v.(type) {
	case *Components:
		return cs
	case *form.Schema:
		return Flatten(data, cs.Components)
	case []*form.Component:
		return Flatten(data, cs)
	case []any:
		schema, err := form.Parse(cs)
		if err != nil {
			return newComponents()
		}
		return Flatten(data, schema.Components)
	case map[string]any:
		if list, ok := cs["components"].([]any); ok {
			return ComponentsFrom(data, list)
		}
		out := newComponents()
		paths := make([]string, 0, len(cs))
		for path := range cs {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		for _, path := range paths {
			switch def := cs[path].(type) {
			case map[string]any:
				out.add(path, form.FromMap(def))
			case *form.Component:
				out.add(path, def)
			}
		}
		return out
	}
	return newComponents()
}
