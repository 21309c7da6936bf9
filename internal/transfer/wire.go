package transfer

import (
	"fmt"
	"strconv"
)

// Encode prepares value to cross a process boundary as JSON. Function
// source stays as text and its location is reported in callables. Live Go
// functions and cyclic graphs cannot leave the process.
func Encode(value any) (any, [][]string, error) {
	w := &wireTree{Tree: NewTree()}
	if err := Transfer(w, "v", value, rejectCallables()); err != nil {
		return nil, nil, err
	}
	return w.root["v"], w.callables, nil
}

// Decode restores the function source markers recorded by Encode.
func Decode(value any, callables [][]string) (any, error) {
	var err error
	for _, path := range callables {
		if value, err = markSource(value, path); err != nil {
			return nil, err
		}
	}
	return value, nil
}

type wireTree struct {
	*Tree
	callables [][]string
}

func (w *wireTree) SetSource(p Path, src Source) error {
	w.callables = append(w.callables, append([]string(nil), p[1:]...))
	return w.assign(p, string(src))
}

// SetRef duplicates shared subtrees. Only references back into an
// ancestor are rejected.
func (w *wireTree) SetRef(p Path, target Path) error {
	if p.HasPrefix(target) {
		return fmt.Errorf("%w: cycle at %s", ErrNotTransportable, p)
	}
	w.mu.Lock()
	v, err := w.lookup(target)
	w.mu.Unlock()
	if err != nil {
		return err
	}

	from := target[1:]
	for _, c := range w.callables {
		if Path(c).HasPrefix(from) {
			moved := append(append([]string(nil), p[1:]...), c[len(from):]...)
			w.callables = append(w.callables, moved)
		}
	}
	return w.assign(p, cloneTree(v))
}

func cloneTree(v any) any {
	switch c := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(c))
		for k, e := range c {
			out[k] = cloneTree(e)
		}
		return out
	case []any:
		out := make([]any, len(c))
		for i, e := range c {
			out[i] = cloneTree(e)
		}
		return out
	}
	return v
}

func markSource(v any, path []string) (any, error) {
	if len(path) == 0 {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("callable marker points at %T, want function source", v)
		}
		return Source(s), nil
	}
	switch c := v.(type) {
	case map[string]any:
		child, ok := c[path[0]]
		if !ok {
			return nil, fmt.Errorf("callable marker key %q not found", path[0])
		}
		marked, err := markSource(child, path[1:])
		if err != nil {
			return nil, err
		}
		c[path[0]] = marked
		return c, nil
	case []any:
		i, err := strconv.Atoi(path[0])
		if err != nil || i < 0 || i >= len(c) {
			return nil, fmt.Errorf("callable marker index %q out of range", path[0])
		}
		marked, err := markSource(c[i], path[1:])
		if err != nil {
			return nil, err
		}
		c[i] = marked
		return c, nil
	}
	return nil, fmt.Errorf("callable marker %v does not match payload", path)
}
