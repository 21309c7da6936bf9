package transfer

import (
	"strconv"
	"strings"
)

// Path addresses a slot in a destination realm, starting at a
// top-level name.
type Path []string

// Child returns a new path one level below p.
func (p Path) Child(key string) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = key
	return out
}

// Index returns the child path for an array element.
func (p Path) Index(i int) Path {
	return p.Child(strconv.Itoa(i))
}

// HasPrefix reports whether q is p or an ancestor of p.
func (p Path) HasPrefix(q Path) bool {
	if len(q) > len(p) {
		return false
	}
	for i := range q {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// String renders the path as a bracketed accessor, e.g. a['b']['0'].
func (p Path) String() string {
	if len(p) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(p[0])
	for _, k := range p[1:] {
		b.WriteString("['")
		b.WriteString(strings.ReplaceAll(k, "'", "\\'"))
		b.WriteString("']")
	}
	return b.String()
}
