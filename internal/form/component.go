// Package form models form schemas: a tree of components with data keys,
// visibility rules and calculated values.
package form

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// DataKind says how a component shapes the submission data.
type DataKind int

const (
	// DataNone components hold no value and do not nest data (panels, columns).
	DataNone DataKind = iota
	// DataValue components store one value under their key.
	DataValue
	// DataObject components nest their children under an object at their key.
	DataObject
	// DataArray components nest their children under an array of rows.
	DataArray
)

// Persistence is the persistent flag, which may be a boolean, the string
// "client-only", or absent.
type Persistence struct {
	Set        bool
	Value      bool
	ClientOnly bool
}

// Stored reports whether the value may leave the client. An absent flag
// means persistent.
func (p Persistence) Stored() bool {
	return !p.Set || (p.Value && !p.ClientOnly)
}

// Conditional is the simple show/when/eq rule plus an optional JSON-logic rule.
type Conditional struct {
	Show any
	When string
	Eq   any
	JSON any
}

// StaticShow returns the show flag when it is given as a boolean or the
// strings "true"/"false".
func (c *Conditional) StaticShow() (bool, bool) {
	switch v := c.Show.(type) {
	case bool:
		return v, true
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b, true
		}
	}
	return false, false
}

// Column is a cell of a columns or table layout.
type Column struct {
	Components []*Component
}

// Component is one node of a form schema. Attrs keeps the full raw
// definition for formatters and snippets.
type Component struct {
	Key                    string
	Type                   string
	Label                  string
	Placeholder            string
	Input                  bool
	Tree                   bool
	Persistent             Persistence
	ClearOnHide            *bool
	Protected              bool
	Multiple               bool
	DefaultValue           any
	Conditional            *Conditional
	CustomConditional      string
	CalculateValue         any
	AllowCalculateOverride bool

	Components []*Component
	Columns    []*Column
	Rows       [][]*Column

	Attrs map[string]any
}

// FromMap builds a component from its decoded JSON definition. Fields of
// the wrong type are treated as absent.
func FromMap(m map[string]any) *Component {
	c := &Component{
		Key:                    str(m["key"]),
		Type:                   str(m["type"]),
		Label:                  str(m["label"]),
		Placeholder:            str(m["placeholder"]),
		Input:                  inputOf(m),
		Tree:                   truthy(m["tree"]),
		Protected:              truthy(m["protected"]),
		Multiple:               truthy(m["multiple"]),
		DefaultValue:           m["defaultValue"],
		CustomConditional:      str(m["customConditional"]),
		CalculateValue:         m["calculateValue"],
		AllowCalculateOverride: truthy(m["allowCalculateOverride"]),
		Components:             listOf(m["components"]),
		Attrs:                  m,
	}

	if v, ok := m["persistent"]; ok && v != nil {
		c.Persistent.Set = true
		c.Persistent.Value = truthy(v)
		c.Persistent.ClientOnly = v == "client-only"
	}
	if v, ok := m["clearOnHide"]; ok && v != nil {
		b := truthy(v)
		c.ClearOnHide = &b
	}
	if cond, ok := m["conditional"].(map[string]any); ok {
		c.Conditional = &Conditional{
			Show: cond["show"],
			When: str(cond["when"]),
			Eq:   cond["eq"],
			JSON: cond["json"],
		}
	}
	if cols, ok := m["columns"].([]any); ok {
		for _, col := range cols {
			if cm, ok := col.(map[string]any); ok {
				c.Columns = append(c.Columns, &Column{Components: listOf(cm["components"])})
			}
		}
	}
	if rows, ok := m["rows"].([]any); ok {
		for _, row := range rows {
			cells, _ := row.([]any)
			var out []*Column
			for _, cell := range cells {
				if cm, ok := cell.(map[string]any); ok {
					out = append(out, &Column{Components: listOf(cm["components"])})
				}
			}
			c.Rows = append(c.Rows, out)
		}
	}
	return c
}

// UnmarshalJSON decodes a component leniently through FromMap.
func (c *Component) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*c = *FromMap(m)
	return nil
}

// Children returns every child list: nested components, column cells and
// table cells.
func (c *Component) Children() [][]*Component {
	var out [][]*Component
	if len(c.Components) > 0 {
		out = append(out, c.Components)
	}
	for _, col := range c.Columns {
		out = append(out, col.Components)
	}
	for _, row := range c.Rows {
		for _, cell := range row {
			out = append(out, cell.Components)
		}
	}
	return out
}

// HasChildren reports whether any child list is non-empty.
func (c *Component) HasChildren() bool {
	for _, list := range c.Children() {
		if len(list) > 0 {
			return true
		}
	}
	return false
}

// DataKind classifies how the component stores data.
func (c *Component) DataKind() DataKind {
	switch c.Type {
	case "datagrid", "editgrid":
		return DataArray
	case "container":
		return DataObject
	}
	if c.HasChildren() {
		if c.Tree {
			return DataArray
		}
		return DataNone
	}
	if c.Input && c.Key != "" {
		return DataValue
	}
	return DataNone
}

// NestsData reports whether children live below this component's key.
func (c *Component) NestsData() bool {
	k := c.DataKind()
	return k == DataObject || k == DataArray
}

// ClearsOnHide reports whether hidden values are dropped; absent means true.
func (c *Component) ClearsOnHide() bool {
	return c.ClearOnHide == nil || *c.ClearOnHide
}

func (c *Component) String() string {
	return fmt.Sprintf("%s(%s)", c.Type, c.Key)
}

// layoutTypes hold no value of their own unless "input" says otherwise.
var layoutTypes = map[string]bool{
	"panel": true, "columns": true, "fieldset": true, "well": true, "table": true,
	"tabs": true, "content": true, "htmlelement": true,
}

func inputOf(m map[string]any) bool {
	if v, ok := m["input"]; ok {
		return truthy(v)
	}
	return !layoutTypes[str(m["type"])]
}

func listOf(v any) []*Component {
	items, _ := v.([]any)
	out := make([]*Component, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, FromMap(m))
		}
	}
	return out
}

func str(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(s, 10)
	case int:
		return strconv.Itoa(s)
	}
	return ""
}

func truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		return b != "" && b != "false"
	case float64:
		return b != 0
	case int64:
		return b != 0
	case int:
		return b != 0
	}
	return true
}
