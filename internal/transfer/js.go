package transfer

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dop251/goja"
)

// JSContext is a realm backed by a goja runtime. Slots are properties
// reachable from its root object, the runtime's global object by default.
type JSContext struct {
	vm     *goja.Runtime
	root   *goja.Object
	freeze goja.Callable
	frozen []Path
	closed *atomic.Bool
}

// NewJSContext binds a realm to vm's global object.
func NewJSContext(vm *goja.Runtime) *JSContext {
	c := &JSContext{vm: vm, root: vm.GlobalObject(), closed: new(atomic.Bool)}
	if object, ok := vm.Get("Object").(*goja.Object); ok {
		c.freeze, _ = goja.AssertFunction(object.Get("freeze"))
	}
	return c
}

// Runtime returns the underlying goja runtime.
func (c *JSContext) Runtime() *goja.Runtime {
	return c.vm
}

// Close tears the realm down; transfers in flight stop at their next step.
func (c *JSContext) Close() {
	c.closed.Store(true)
}

func (c *JSContext) Err() error {
	if c.closed.Load() {
		return ErrTornDown
	}
	return nil
}

func (c *JSContext) SetValue(p Path, v any) error {
	return c.set(p, v)
}

func (c *JSContext) SetObject(p Path) error {
	return c.set(p, c.vm.NewObject())
}

func (c *JSContext) SetArray(p Path, n int) error {
	return c.set(p, c.vm.NewArray())
}

func (c *JSContext) SetFunc(p Path, fn Func) error {
	return c.set(p, c.stub(fn))
}

func (c *JSContext) SetSource(p Path, src Source) error {
	v, err := c.vm.RunString("(" + string(src) + ")")
	if err != nil {
		return fmt.Errorf("compile function at %s: %w", p, err)
	}
	if _, ok := goja.AssertFunction(v); !ok {
		return fmt.Errorf("%w: source at %s is not a function", ErrUnsupported, p)
	}
	return c.set(p, v)
}

func (c *JSContext) SetRef(p Path, target Path) error {
	v, err := c.get(target)
	if err != nil {
		return err
	}
	return c.set(p, v)
}

func (c *JSContext) Freeze(p Path) error {
	if c.freeze == nil {
		return errors.New("transfer: Object.freeze unavailable")
	}
	v, err := c.get(p)
	if err != nil {
		return err
	}
	if err := c.deepFreeze(v, make(map[*goja.Object]bool)); err != nil {
		return err
	}
	c.frozen = append(c.frozen, p)
	return nil
}

func (c *JSContext) deepFreeze(v goja.Value, seen map[*goja.Object]bool) error {
	obj, ok := v.(*goja.Object)
	if !ok || seen[obj] {
		return nil
	}
	seen[obj] = true
	if _, err := c.freeze(goja.Undefined(), obj); err != nil {
		return err
	}
	for _, k := range obj.Keys() {
		if err := c.deepFreeze(obj.Get(k), seen); err != nil {
			return err
		}
	}
	return nil
}

// stub exposes fn as a native function. Arguments leave the runtime via
// Export and the result is transferred into a scratch holder.
func (c *JSContext) stub(fn Func) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		args := make([]any, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = a.Export()
		}
		res, err := fn(args)
		if err != nil {
			panic(c.vm.NewGoError(err))
		}
		holder := c.vm.NewObject()
		sub := &JSContext{vm: c.vm, root: holder, freeze: c.freeze, closed: c.closed}
		if err := Transfer(sub, "v", res); err != nil {
			panic(c.vm.NewGoError(err))
		}
		return holder.Get("v")
	}
}

func (c *JSContext) set(p Path, v any) error {
	if len(p) == 0 {
		return errors.New("transfer: empty path")
	}
	for _, f := range c.frozen {
		if p.HasPrefix(f) {
			return fmt.Errorf("%w: %s", ErrFrozen, p)
		}
	}
	parent := c.root
	for _, k := range p[:len(p)-1] {
		child, ok := parent.Get(k).(*goja.Object)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNoSlot, p)
		}
		parent = child
	}
	// defining rather than assigning keeps keys such as "toString" working
	// when builtin prototypes are frozen
	return parent.DefineDataProperty(p[len(p)-1], c.vm.ToValue(v), goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_TRUE)
}

func (c *JSContext) get(p Path) (goja.Value, error) {
	var cur goja.Value = c.root
	for _, k := range p {
		obj, ok := cur.(*goja.Object)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoSlot, p)
		}
		cur = obj.Get(k)
		if cur == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoSlot, p)
		}
	}
	return cur, nil
}
