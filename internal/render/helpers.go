package render

import (
	"time"

	"github.com/flosch/pongo2/v6"

	"template-service/internal/formatter"
	"template-service/internal/resolver"
)

// helpers returns the functions every job context gets. view is the
// resolved form of a dynamic job and nil for a static one.
func (r *Renderer) helpers(view *resolver.Resolution) map[string]any {
	table := func(data any, components any) string {
		if view != nil {
			return r.formats.RenderView(view)
		}
		return r.formats.RenderSubmission(data, components)
	}
	return map[string]any{
		"submission":      table,
		"submissionTable": table,
		"componentValue": func(data any, key string, components any) string {
			return r.formats.FormatValue(data, key, formatter.ComponentsFrom(data, components)).Value
		},
		"componentLabel": func(key string, components any) string {
			return formatter.ComponentLabel(key, formatter.ComponentsFrom(nil, components))
		},
	}
}

// defaultDateFormat is what the date filter uses without an argument.
const defaultDateFormat = "YYYY-MM-DDTHH:mm:ssZ"

// filterDate formats a date with moment style tokens:
// {{ created | date:"MMM D, YYYY" }}. Without a value it formats now.
// Dates are shown in UTC.
func filterDate(in *pongo2.Value, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	format := defaultDateFormat
	if param != nil && param.IsString() && param.String() != "" {
		format = param.String()
	}

	var t time.Time
	if in == nil || in.IsNil() {
		t = time.Now().UTC()
	} else {
		var ok bool
		if t, ok = formatter.ParseTime(in.Interface()); !ok {
			return pongo2.AsValue(formatter.InvalidDate), nil
		}
	}
	return pongo2.AsValue(formatter.FormatMoment(t.UTC(), format)), nil
}
