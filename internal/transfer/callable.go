package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

// SourceRunner executes function source on behalf of a realm that cannot
// compile it itself.
type SourceRunner interface {
	Invoke(ctx context.Context, source string, args []any) any
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// hostFunc wraps a Go function so a realm can call it. Arguments are
// copied out of the realm and coerced to the parameter types; a trailing
// error result is surfaced as the call's error.
func hostFunc(fn reflect.Value) Func {
	t := fn.Type()
	return func(args []any) (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("host function panicked: %v", r)
			}
		}()

		fixed := t.NumIn()
		if t.IsVariadic() {
			fixed--
		}

		in := make([]reflect.Value, 0, len(args))
		for i := 0; i < fixed; i++ {
			var arg any
			if i < len(args) {
				arg = args[i]
			}
			v, err := coerce(arg, t.In(i))
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			in = append(in, v)
		}
		if t.IsVariadic() {
			elem := t.In(fixed).Elem()
			for i := fixed; i < len(args); i++ {
				v, err := coerce(args[i], elem)
				if err != nil {
					return nil, fmt.Errorf("argument %d: %w", i, err)
				}
				in = append(in, v)
			}
		}

		return results(t, fn.Call(in))
	}
}

func coerce(arg any, t reflect.Type) (reflect.Value, error) {
	if arg == nil {
		return reflect.Zero(t), nil
	}
	owned, err := Copy(arg)
	if err != nil {
		return reflect.Value{}, err
	}
	if owned == nil {
		return reflect.Zero(t), nil
	}

	v := reflect.ValueOf(owned)
	if v.Type().AssignableTo(t) {
		return v, nil
	}
	if t.Kind() == reflect.String {
		return reflect.ValueOf(fmt.Sprint(owned)).Convert(t), nil
	}
	if isScalar(v.Kind()) && isScalar(t.Kind()) && v.Type().ConvertibleTo(t) {
		return v.Convert(t), nil
	}

	data, err := json.Marshal(owned)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("cannot pass %T as %s: %w", owned, t, err)
	}
	target := reflect.New(t)
	if err := json.Unmarshal(data, target.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("cannot pass %T as %s: %w", owned, t, err)
	}
	return target.Elem(), nil
}

func isScalar(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func results(t reflect.Type, out []reflect.Value) (any, error) {
	if len(out) == 0 {
		return nil, nil
	}
	if t.Out(t.NumOut()-1) == errorType {
		if last := out[len(out)-1]; !last.IsNil() {
			return nil, last.Interface().(error)
		}
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0].Interface(), nil
}
