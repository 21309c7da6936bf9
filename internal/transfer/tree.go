package transfer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
)

// HostFunc is the shape a Tree gives to transferred callables, which
// template engines can call directly.
type HostFunc = func(args ...any) (any, error)

// Tree is a realm made of plain Go maps and slices.
type Tree struct {
	mu     sync.Mutex
	root   map[string]any
	frozen []Path
	closed atomic.Bool

	jsNumbers bool
	runner    SourceRunner
	runCtx    context.Context
}

// TreeOption configures a Tree.
type TreeOption func(*Tree)

// WithJSNumbers stores integral floats as int64, so numbers that arrived
// as JSON print without a fractional part.
func WithJSNumbers() TreeOption {
	return func(t *Tree) { t.jsNumbers = true }
}

// WithSourceRunner binds function source through r. Without a runner,
// Source values are stored as inert text.
func WithSourceRunner(ctx context.Context, r SourceRunner) TreeOption {
	return func(t *Tree) {
		t.runner = r
		t.runCtx = ctx
	}
}

// NewTree creates an empty realm.
func NewTree(opts ...TreeOption) *Tree {
	t := &Tree{root: make(map[string]any), runCtx: context.Background()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Root returns the top-level bindings.
func (t *Tree) Root() map[string]any {
	return t.root
}

// Get returns the value bound to a top-level name.
func (t *Tree) Get(name string) any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.root[name]
}

// Close tears the realm down; later writes fail with ErrTornDown.
func (t *Tree) Close() {
	t.closed.Store(true)
}

func (t *Tree) Err() error {
	if t.closed.Load() {
		return ErrTornDown
	}
	return nil
}

func (t *Tree) SetValue(p Path, v any) error {
	if f, ok := v.(float64); ok && t.jsNumbers && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		v = int64(f)
	}
	return t.assign(p, v)
}

func (t *Tree) SetObject(p Path) error {
	return t.assign(p, make(map[string]any))
}

func (t *Tree) SetArray(p Path, n int) error {
	return t.assign(p, make([]any, n))
}

func (t *Tree) SetFunc(p Path, fn Func) error {
	return t.assign(p, t.stub(fn))
}

func (t *Tree) SetSource(p Path, src Source) error {
	if t.runner == nil {
		return t.assign(p, src)
	}
	runner, ctx, text := t.runner, t.runCtx, string(src)
	return t.SetFunc(p, func(args []any) (any, error) {
		return runner.Invoke(ctx, text, args), nil
	})
}

func (t *Tree) SetRef(p Path, target Path) error {
	t.mu.Lock()
	v, err := t.lookup(target)
	t.mu.Unlock()
	if err != nil {
		return err
	}
	return t.assign(p, v)
}

func (t *Tree) Freeze(p Path) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.lookup(p); err != nil {
		return err
	}
	t.frozen = append(t.frozen, p)
	return nil
}

func (t *Tree) stub(fn Func) HostFunc {
	return func(args ...any) (any, error) {
		if err := t.Err(); err != nil {
			return nil, err
		}
		res, err := fn(args)
		if err != nil {
			return nil, err
		}
		scratch := &Tree{root: make(map[string]any), jsNumbers: t.jsNumbers, runner: t.runner, runCtx: t.runCtx}
		if err := Transfer(scratch, "v", res); err != nil {
			return nil, err
		}
		return scratch.root["v"], nil
	}
}

func (t *Tree) assign(p Path, v any) error {
	if len(p) == 0 {
		return errors.New("transfer: empty path")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, f := range t.frozen {
		if p.HasPrefix(f) {
			return fmt.Errorf("%w: %s", ErrFrozen, p)
		}
	}
	if len(p) == 1 {
		t.root[p[0]] = v
		return nil
	}

	parent, err := t.lookup(p[:len(p)-1])
	if err != nil {
		return err
	}
	key := p[len(p)-1]
	switch c := parent.(type) {
	case map[string]any:
		c[key] = v
	case []any:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(c) {
			return fmt.Errorf("%w: %s", ErrNoSlot, p)
		}
		c[i] = v
	default:
		return fmt.Errorf("%w: %s", ErrNoSlot, p)
	}
	return nil
}

func (t *Tree) lookup(p Path) (any, error) {
	var cur any = t.root
	for _, k := range p {
		switch c := cur.(type) {
		case map[string]any:
			v, ok := c[k]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrNoSlot, p)
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(k)
			if err != nil || i < 0 || i >= len(c) {
				return nil, fmt.Errorf("%w: %s", ErrNoSlot, p)
			}
			cur = c[i]
		default:
			return nil, fmt.Errorf("%w: %s", ErrNoSlot, p)
		}
	}
	return cur, nil
}
