package form

import (
	"encoding/json"
	"fmt"
)

// Schema is a parsed form definition.
type Schema struct {
	Display    string
	Components []*Component
}

// Parse accepts a decoded form object ({"components": [...]}) or a bare
// component list.
func Parse(form any) (*Schema, error) {
	switch f := form.(type) {
	case map[string]any:
		if _, ok := f["components"].([]any); !ok && f["components"] != nil {
			return nil, fmt.Errorf("form components must be a list")
		}
		return &Schema{Display: str(f["display"]), Components: listOf(f["components"])}, nil
	case []any:
		return &Schema{Components: listOf(f)}, nil
	case *Schema:
		return f, nil
	case nil:
		return &Schema{}, nil
	}
	return nil, fmt.Errorf("unsupported form definition %T", form)
}

// ParseJSON decodes and parses a form definition.
func ParseJSON(b []byte) (*Schema, error) {
	var form any
	if err := json.Unmarshal(b, &form); err != nil {
		return nil, err
	}
	return Parse(form)
}

// Find returns the first component whose data path equals path.
func (s *Schema) Find(path string) *Component {
	var found *Component
	Walk(s.Components, func(c *Component, p string) WalkResult {
		if p == path {
			found = c
			return Stop
		}
		return Continue
	})
	return found
}
