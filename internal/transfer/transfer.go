package transfer

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"
)

var (
	// ErrTornDown is returned when the destination realm goes away mid-transfer.
	ErrTornDown = errors.New("destination realm torn down")
	// ErrUnsupported is returned for values with no realm representation.
	ErrUnsupported = errors.New("value cannot be transferred")
	// ErrFrozen is returned when writing at or below a frozen path.
	ErrFrozen = errors.New("destination path is frozen")
	// ErrNoSlot is returned when a path does not resolve in the destination.
	ErrNoSlot = errors.New("destination slot does not exist")
	// ErrNotTransportable is returned by Encode for values that cannot leave the process.
	ErrNotTransportable = errors.New("value is not transportable")
)

// Func is a callable as seen from inside a realm.
type Func func(args []any) (any, error)

// Source is the text of a JavaScript function. It travels as text and is
// only ever compiled inside a realm.
type Source string

// Inheritor is implemented by values that expose members beyond their
// exported fields. Inherited members are copied before own fields, so own
// fields win on a name clash.
type Inheritor interface {
	Inherited() map[string]any
}

// Context is a destination realm. Every method addresses a slot by path;
// the parent of the slot must already exist.
type Context interface {
	SetValue(p Path, v any) error
	SetObject(p Path) error
	SetArray(p Path, n int) error
	SetFunc(p Path, fn Func) error
	SetSource(p Path, src Source) error
	// SetRef makes p refer to the already-populated slot at target.
	SetRef(p Path, target Path) error
	// Freeze makes the subtree at p read-only.
	Freeze(p Path) error
	// Err reports a non-nil error once the realm is no longer usable.
	Err() error
}

// Option adjusts a single transfer.
type Option func(*options)

type options struct {
	skipCallables   bool
	rejectCallables bool
}

// SkipCallables writes null in place of Go functions.
func SkipCallables() Option {
	return func(o *options) { o.skipCallables = true }
}

func rejectCallables() Option {
	return func(o *options) { o.rejectCallables = true }
}

// Transfer copies value into dst under the top-level name.
func Transfer(dst Context, name string, value any, opts ...Option) error {
	w := &walker{dst: dst, visited: make(map[identity]Path)}
	for _, opt := range opts {
		opt(&w.opts)
	}
	return w.walk(Path{name}, reflect.ValueOf(value))
}

// Freeze transfers value and then freezes it in place.
func Freeze(dst Context, name string, value any, opts ...Option) error {
	if err := Transfer(dst, name, value, opts...); err != nil {
		return err
	}
	return dst.Freeze(Path{name})
}

// Copy returns a deep copy of value built from plain maps, slices and
// scalars. Cycles and shared references are preserved.
func Copy(value any, opts ...Option) (any, error) {
	t := NewTree()
	if err := Transfer(t, "v", value, opts...); err != nil {
		return nil, err
	}
	return t.Get("v"), nil
}

type identity struct {
	kind reflect.Kind
	typ  reflect.Type
	ptr  uintptr
	n    int
}

func identityOf(v reflect.Value) (identity, bool) {
	switch v.Kind() {
	case reflect.Map, reflect.Pointer:
		if v.IsNil() {
			return identity{}, false
		}
		return identity{kind: v.Kind(), typ: v.Type(), ptr: v.Pointer()}, true
	case reflect.Slice:
		// empty slices may all share the zero-size allocation
		if v.IsNil() || v.Len() == 0 {
			return identity{}, false
		}
		return identity{kind: v.Kind(), typ: v.Type(), ptr: v.Pointer(), n: v.Len()}, true
	}
	return identity{}, false
}

type copier func(w *walker, p Path, v reflect.Value) error

var kinds map[reflect.Kind]copier

func init() {
	kinds = map[reflect.Kind]copier{
		reflect.Bool:    copyBool,
		reflect.Int:     copyInt,
		reflect.Int8:    copyInt,
		reflect.Int16:   copyInt,
		reflect.Int32:   copyInt,
		reflect.Int64:   copyInt,
		reflect.Uint:    copyUint,
		reflect.Uint8:   copyUint,
		reflect.Uint16:  copyUint,
		reflect.Uint32:  copyUint,
		reflect.Uint64:  copyUint,
		reflect.Float32: copyFloat,
		reflect.Float64: copyFloat,
		reflect.String:  copyString,
		reflect.Map:     copyMap,
		reflect.Slice:   copySlice,
		reflect.Array:   copySlice,
		reflect.Pointer: copyPointer,
		reflect.Struct:  copyStruct,
		reflect.Func:    copyFunc,
	}
}

type walker struct {
	dst     Context
	opts    options
	visited map[identity]Path
}

func (w *walker) walk(p Path, v reflect.Value) error {
	if err := w.dst.Err(); err != nil {
		return fmt.Errorf("transfer %s: %w", p, err)
	}

	for v.IsValid() && v.Kind() == reflect.Interface {
		if v.IsNil() {
			return w.dst.SetValue(p, nil)
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return w.dst.SetValue(p, nil)
	}

	if v.CanInterface() {
		switch x := v.Interface().(type) {
		case Source:
			return w.dst.SetSource(p, x)
		case time.Time:
			return w.dst.SetValue(p, x.Format(time.RFC3339Nano))
		case json.Number:
			if i, err := x.Int64(); err == nil {
				return w.dst.SetValue(p, i)
			}
			if f, err := x.Float64(); err == nil {
				return w.dst.SetValue(p, f)
			}
			return w.dst.SetValue(p, x.String())
		case json.RawMessage:
			var decoded any
			if err := json.Unmarshal(x, &decoded); err != nil {
				return fmt.Errorf("%w: invalid raw JSON at %s", ErrUnsupported, p)
			}
			return w.walk(p, reflect.ValueOf(decoded))
		}
	}

	if id, ok := identityOf(v); ok {
		if target, seen := w.visited[id]; seen {
			return w.dst.SetRef(p, target)
		}
		w.visited[id] = p
	}

	copyFn := kinds[v.Kind()]
	if copyFn == nil {
		return fmt.Errorf("%w: %s at %s", ErrUnsupported, v.Type(), p)
	}
	return copyFn(w, p, v)
}

func copyBool(w *walker, p Path, v reflect.Value) error {
	return w.dst.SetValue(p, v.Bool())
}

func copyInt(w *walker, p Path, v reflect.Value) error {
	return w.dst.SetValue(p, v.Int())
}

func copyUint(w *walker, p Path, v reflect.Value) error {
	u := v.Uint()
	if u > math.MaxInt64 {
		return w.dst.SetValue(p, float64(u))
	}
	return w.dst.SetValue(p, int64(u))
}

func copyFloat(w *walker, p Path, v reflect.Value) error {
	return w.dst.SetValue(p, v.Float())
}

func copyString(w *walker, p Path, v reflect.Value) error {
	return w.dst.SetValue(p, v.String())
}

func copyMap(w *walker, p Path, v reflect.Value) error {
	if v.IsNil() {
		return w.dst.SetValue(p, nil)
	}
	if err := w.dst.SetObject(p); err != nil {
		return err
	}

	keys := v.MapKeys()
	names := make([]string, len(keys))
	order := make([]int, len(keys))
	for i, k := range keys {
		names[i] = keyString(k)
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return names[order[a]] < names[order[b]] })

	for _, i := range order {
		if err := w.walk(p.Child(names[i]), v.MapIndex(keys[i])); err != nil {
			return err
		}
	}
	return nil
}

func keyString(k reflect.Value) string {
	for k.Kind() == reflect.Interface && !k.IsNil() {
		k = k.Elem()
	}
	if k.Kind() == reflect.String {
		return k.String()
	}
	if k.CanInterface() {
		return fmt.Sprint(k.Interface())
	}
	return k.String()
}

func copySlice(w *walker, p Path, v reflect.Value) error {
	if v.Kind() == reflect.Slice && v.IsNil() {
		return w.dst.SetValue(p, nil)
	}
	n := v.Len()
	if err := w.dst.SetArray(p, n); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := w.walk(p.Index(i), v.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

func copyPointer(w *walker, p Path, v reflect.Value) error {
	if v.IsNil() {
		return w.dst.SetValue(p, nil)
	}
	return w.walk(p, v.Elem())
}

func copyStruct(w *walker, p Path, v reflect.Value) error {
	if err := w.dst.SetObject(p); err != nil {
		return err
	}
	if inh, ok := inheritorOf(v); ok {
		members := inh.Inherited()
		names := make([]string, 0, len(members))
		for k := range members {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			if err := w.walk(p.Child(k), reflect.ValueOf(members[k])); err != nil {
				return err
			}
		}
	}
	return w.copyFields(p, v)
}

func inheritorOf(v reflect.Value) (Inheritor, bool) {
	if v.CanInterface() {
		if i, ok := v.Interface().(Inheritor); ok {
			return i, true
		}
	}
	if v.CanAddr() && v.Addr().CanInterface() {
		if i, ok := v.Addr().Interface().(Inheritor); ok {
			return i, true
		}
	}
	return nil, false
}

// copyFields copies promoted fields of embedded structs first and the
// struct's own exported fields after them.
func (w *walker) copyFields(p Path, v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.Anonymous || !f.IsExported() {
			continue
		}
		fv := v.Field(i)
		if fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				continue
			}
			fv = fv.Elem()
		}
		if _, tagged := f.Tag.Lookup("json"); fv.Kind() == reflect.Struct && !tagged {
			if err := w.copyFields(p, fv); err != nil {
				return err
			}
			continue
		}
		if err := w.copyField(p, f, fv); err != nil {
			return err
		}
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous || !f.IsExported() {
			continue
		}
		if err := w.copyField(p, f, v.Field(i)); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) copyField(p Path, f reflect.StructField, v reflect.Value) error {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return nil
	}
	name, rest, _ := strings.Cut(tag, ",")
	if name == "" {
		name = f.Name
	}
	if strings.Contains(rest, "omitempty") && v.IsZero() {
		return nil
	}
	return w.walk(p.Child(name), v)
}

func copyFunc(w *walker, p Path, v reflect.Value) error {
	if v.IsNil() {
		return w.dst.SetValue(p, nil)
	}
	switch {
	case w.opts.rejectCallables:
		return fmt.Errorf("%w: live function at %s", ErrNotTransportable, p)
	case w.opts.skipCallables:
		return w.dst.SetValue(p, nil)
	}
	return w.dst.SetFunc(p, hostFunc(v))
}
