package resolver

import "template-service/internal/form"

// Instance is one component bound to the object that holds its value.
// Components inside grids get one instance per row.
type Instance struct {
	Component *form.Component
	Parent    *Instance
	Children  []*Instance

	// Path is the data path including row indexes, e.g. "grid.0.qty".
	Path string
	// Scope is the object the component's key lives in.
	Scope map[string]any
	// Row is the enclosing grid row, nil outside grids.
	Row      map[string]any
	RowIndex int

	conditionallyVisible bool
}

func (i *Instance) Key() string {
	return i.Component.Key
}

// Value returns the instance's current value and whether it is set.
func (i *Instance) Value() (any, bool) {
	if i.Scope == nil || i.Component.DataKind() == form.DataNone {
		return nil, false
	}
	v, ok := i.Scope[i.Key()]
	return v, ok
}

// ConditionallyVisible reports the outcome of the component's own rules.
func (i *Instance) ConditionallyVisible() bool {
	return i.conditionallyVisible
}

// ParentVisible reports whether every ancestor is visible.
func (i *Instance) ParentVisible() bool {
	for p := i.Parent; p != nil; p = p.Parent {
		if !p.conditionallyVisible {
			return false
		}
	}
	return true
}

// Visible is ConditionallyVisible and ParentVisible.
func (i *Instance) Visible() bool {
	return i.conditionallyVisible && i.ParentVisible()
}

// walkInstances visits instances depth first in schema order.
func walkInstances(list []*Instance, fn func(*Instance) form.WalkResult) bool {
	for _, inst := range list {
		switch fn(inst) {
		case form.Stop:
			return false
		case form.SkipChildren:
			continue
		}
		if !walkInstances(inst.Children, fn) {
			return false
		}
	}
	return true
}
