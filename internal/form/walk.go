package form

// WalkResult steers a traversal.
type WalkResult int

const (
	// Continue descends into the component's children.
	Continue WalkResult = iota
	// SkipChildren moves on to the next sibling.
	SkipChildren
	// Stop ends the traversal.
	Stop
)

// WalkFunc is called for every component with its data path.
type WalkFunc func(c *Component, path string) WalkResult

// Walk visits components depth first. Children of data-nesting components
// get paths below their parent's key; children of layout components share
// the parent's prefix. It returns false when fn stopped the walk.
func Walk(components []*Component, fn WalkFunc) bool {
	return walk(components, "", fn)
}

func walk(components []*Component, prefix string, fn WalkFunc) bool {
	for _, c := range components {
		if c == nil {
			continue
		}
		path := prefix + c.Key
		switch fn(c, path) {
		case Stop:
			return false
		case SkipChildren:
			continue
		}

		childPrefix := prefix
		if c.NestsData() {
			childPrefix = path + "."
		}
		for _, children := range c.Children() {
			if !walk(children, childPrefix, fn) {
				return false
			}
		}
	}
	return true
}
