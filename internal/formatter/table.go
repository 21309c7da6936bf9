package formatter

import (
	"fmt"
	"strings"

	"template-service/internal/form"
	"template-service/internal/resolver"
)

// RenderSubmission renders every flattened component of components as one
// row of a two-column table.
func (r *Registry) RenderSubmission(data any, components any) string {
	comps := ComponentsFrom(data, components)
	var b strings.Builder
	b.WriteString(tableOpen)
	for _, path := range comps.Paths() {
		v := r.FormatValue(data, path, comps)
		if v.Skip {
			continue
		}
		fmt.Fprintf(&b, `<tr><th style="padding: 5px 10px;">%s</th><td style="width:100%%;padding:5px 10px;">%s</td></tr>`, v.Label, v.Value)
	}
	b.WriteString(tableClose)
	return b.String()
}

const (
	viewOpen  = "<table border=\"1\" style=\"width:100%\">\n          <tbody>"
	viewRow   = "\n      \n            <tr>\n              <th style=\"padding: 5px 10px;\">%s</th>\n              <td style=\"width:100%%;padding:5px 10px;\">%s</td>\n            </tr>\n          "
	viewClose = "\n          </tbody>\n        </table>"
)

// RenderView renders the email view of a resolved submission: visible
// fields only, in schema order, with grids as nested tables.
func (r *Registry) RenderView(res *resolver.Resolution) string {
	var b strings.Builder
	b.WriteString(viewOpen)
	if res != nil {
		r.writeView(&b, res)
	}
	b.WriteString(viewClose)
	return b.String()
}

func (r *Registry) writeView(b *strings.Builder, res *resolver.Resolution) {
	res.Walk(func(inst *resolver.Instance) form.WalkResult {
		if !inst.Visible() {
			return form.SkipChildren
		}
		c := inst.Component
		switch c.Type {
		case "button", "hidden", "container":
			return form.Continue
		}
		if c.DataKind() == form.DataNone {
			return form.Continue
		}
		raw, ok := inst.Value()
		if !ok {
			return form.SkipChildren
		}
		v := r.Format(c, raw)
		if !v.Skip {
			fmt.Fprintf(b, viewRow, v.Label, v.Value)
		}
		return form.SkipChildren
	})
}
