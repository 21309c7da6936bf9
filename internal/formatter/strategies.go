package formatter

import (
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/samber/lo"

	"template-service/internal/form"
)

const (
	tableOpen  = `<table border="1" style="width:100%">`
	tableClose = `</table>`
)

var builtins = map[string]Strategy{
	"password":    formatPassword,
	"address":     formatAddress,
	"signature":   formatSignature,
	"container":   formatContainer,
	"datagrid":    formatGrid,
	"editgrid":    formatGrid,
	"datetime":    formatDateTime,
	"radio":       formatOption,
	"select":      formatOption,
	"selectboxes": formatSelectBoxes,
	"file":        formatFile,
	"survey":      formatSurvey,
}

func formatDefault(_ *Registry, f Field) (any, bool) {
	if !f.Component.Input {
		return nil, false
	}
	return f.Raw, true
}

func formatPassword(*Registry, Field) (any, bool) {
	return PasswordMask, true
}

// manualAddressKeys are the parts of a manually entered address, in the
// order they are shown.
var manualAddressKeys = []string{"address1", "address2", "city", "state", "country", "zip"}

func formatAddress(_ *Registry, f Field) (any, bool) {
	value := f.Raw
	m, ok := value.(map[string]any)
	if ok && truthy(m["mode"]) && truthy(m["address"]) {
		value = m["address"]
		if m["mode"] == "manual" {
			return manualAddress(f.Component, value), true
		}
	}
	if m, ok := value.(map[string]any); ok {
		return m["formatted_address"], true
	}
	return "", true
}

func manualAddress(c *form.Component, value any) string {
	address, _ := value.(map[string]any)
	if s := str(address["formatted_address"]); s != "" {
		return s
	}
	keys := manualAddressKeys
	if len(c.Components) > 0 {
		keys = lo.Map(c.Components, func(sub *form.Component, _ int) string { return sub.Key })
	}
	parts := lo.FilterMap(keys, func(key string, _ int) (string, bool) {
		s := stringify(address[key])
		return s, s != ""
	})
	return strings.Join(parts, ", ")
}

func formatSignature(_ *Registry, f Field) (any, bool) {
	if s, ok := f.Raw.(string); ok && strings.HasPrefix(s, "data:") {
		return "YES", true
	}
	return "NO", true
}

// formatContainer renders the container's own keys as a nested table. Sub
// components are looked up by their full path, then by bare key, then
// among the container's children.
func formatContainer(r *Registry, f Field) (any, bool) {
	value, _ := f.Raw.(map[string]any)
	var b strings.Builder
	b.WriteString(tableOpen)
	for _, key := range containerKeys(f, value) {
		c := f.Components.Get(f.Key + "." + key)
		if c == nil {
			c = f.Components.Get(key)
		}
		if c == nil {
			c = childByKey(f.Component, key)
		}
		sub := r.formatComponent(value, key, c, f.Components)
		if sub.Skip {
			continue
		}
		fmt.Fprintf(&b, `<tr><th style="text-align:right;padding: 5px 10px;">%s</th><td style="width:100%%;padding:5px 10px;">%s</td></tr>`, sub.Label, sub.Value)
	}
	b.WriteString(tableClose)
	return b.String(), true
}

// containerKeys orders keys by the container's schema, then the rest by name.
func containerKeys(f Field, value map[string]any) []string {
	var keys []string
	form.Walk(f.Component.Components, func(c *form.Component, _ string) form.WalkResult {
		if _, ok := value[c.Key]; ok && !lo.Contains(keys, c.Key) {
			keys = append(keys, c.Key)
		}
		if c.NestsData() {
			return form.SkipChildren
		}
		return form.Continue
	})
	rest := lo.Without(lo.Keys(value), keys...)
	sort.Strings(rest)
	return append(keys, rest...)
}

func childByKey(parent *form.Component, key string) *form.Component {
	var found *form.Component
	form.Walk(parent.Components, func(c *form.Component, _ string) form.WalkResult {
		if c.Key == key {
			found = c
			return form.Stop
		}
		if c.NestsData() {
			return form.SkipChildren
		}
		return form.Continue
	})
	return found
}

func formatGrid(r *Registry, f Field) (any, bool) {
	columns := Flatten(nil, f.Component.Components)
	var b strings.Builder
	b.WriteString(tableOpen)
	b.WriteString("<tr>")
	for _, path := range columns.Paths() {
		c := columns.Get(path)
		fmt.Fprintf(&b, `<th style="padding: 5px 10px;">%s</th>`, lo.CoalesceOrEmpty(c.Label, c.Key))
	}
	b.WriteString("</tr>")
	rows, _ := f.Raw.([]any)
	for _, row := range rows {
		b.WriteString("<tr>")
		for _, path := range columns.Paths() {
			sub := r.formatComponent(row, path, columns.Get(path), columns)
			if sub.Skip {
				continue
			}
			b.WriteString(`<td style="padding:5px 10px;">`)
			b.WriteString(sub.Value)
			b.WriteString("</td>")
		}
		b.WriteString("</tr>")
	}
	b.WriteString(tableClose)
	return b.String(), true
}

func formatDateTime(r *Registry, f Field) (any, bool) {
	if f.Raw == "" {
		return "", true
	}
	format := DefaultDateFormat
	if widget, ok := f.Component.Attrs["widget"].(map[string]any); ok && str(widget["format"]) != "" {
		format = str(widget["format"])
	} else if s := str(f.Component.Attrs["format"]); s != "" {
		format = s
	}
	t, ok := ParseTime(f.Raw)
	if !ok {
		return InvalidDate, true
	}
	return FormatMoment(t.In(r.location), ConvertFormioFormat(format)), true
}

// options returns the label/value pairs of a radio, select or select boxes
// component.
func options(c *form.Component) []map[string]any {
	raw, ok := c.Attrs["values"]
	if !ok {
		if data, ok := c.Attrs["data"].(map[string]any); ok {
			raw = data["values"]
		}
	}
	list, _ := raw.([]any)
	return lo.FilterMap(list, func(item any, _ int) (map[string]any, bool) {
		m, ok := item.(map[string]any)
		return m, ok
	})
}

func formatOption(_ *Registry, f Field) (any, bool) {
	if opt, ok := lo.Find(options(f.Component), func(o map[string]any) bool {
		return strictEqual(o["value"], f.Raw)
	}); ok {
		return opt["label"], true
	}
	return f.Raw, true
}

func formatSelectBoxes(_ *Registry, f Field) (any, bool) {
	selected, _ := f.Raw.(map[string]any)
	labels := lo.FilterMap(options(f.Component), func(o map[string]any, _ int) (string, bool) {
		return str(o["label"]), truthy(selected[str(o["value"])])
	})
	return strings.Join(labels, ","), true
}

// linkPolicy keeps file links and nothing else.
func linkPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowURLSchemes("http", "https", "mailto", "data")
	p.RequireParseableURLs(true)
	p.AllowAttrs("href", "download").OnElements("a")
	p.AllowAttrs("target").Matching(regexp.MustCompile(`^_blank$`)).OnElements("a")
	return p
}

func formatFile(r *Registry, f Field) (any, bool) {
	file := f.Raw
	if list, ok := file.([]any); ok {
		file = lo.FirstOrEmpty(list)
	}
	m, ok := file.(map[string]any)
	if !ok {
		return "", true
	}
	name := html.EscapeString(str(m["originalName"]))
	link := fmt.Sprintf(`<a href="%s" target="_blank" download="%s">%s</a>`,
		html.EscapeString(str(m["url"])), name, name)
	return r.policy.Sanitize(link), true
}

func formatSurvey(_ *Registry, f Field) (any, bool) {
	value, _ := f.Raw.(map[string]any)
	questions := listOfMaps(f.Component.Attrs["questions"])
	answers := listOfMaps(f.Component.Attrs["values"])

	var b strings.Builder
	b.WriteString(tableOpen)
	b.WriteString(`
          <thead>
            <tr>
              <th>Question</th>
              <th>Value</th>
            </tr>
          </thead>
        `)
	b.WriteString("<tbody>")
	for _, q := range questions {
		answer, ok := value[str(q["value"])]
		if !ok {
			continue
		}
		a, found := lo.Find(answers, func(a map[string]any) bool { return strictEqual(a["value"], answer) })
		if !found {
			continue
		}
		fmt.Fprintf(&b, `<tr><td style="text-align:center;padding: 5px 10px;">%s</td><td style="text-align:center;padding: 5px 10px;">%s</td></tr>`,
			stringify(q["label"]), stringify(a["label"]))
	}
	b.WriteString("</tbody></table>")
	return b.String(), true
}

func listOfMaps(v any) []map[string]any {
	list, _ := v.([]any)
	return lo.FilterMap(list, func(item any, _ int) (map[string]any, bool) {
		m, ok := item.(map[string]any)
		return m, ok
	})
}
