package templates

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/flosch/pongo2/v6"
)

var (
	builtinOnce sync.Once
	builtinErr  error
)

// builtinFilters are available to every template.
var builtinFilters = map[string]pongo2.FilterFunction{
	"is_string":     filterIsString,
	"is_array":      filterIsArray,
	"is_object":     filterIsObject,
	"to_json":       filterToJSON,
	"base64_encode": filterBase64Encode,
	"base64_decode": filterBase64Decode,
	"md5":           filterMD5,
	"sha256":        filterSHA256,
}

func registerBuiltinFilters() error {
	builtinOnce.Do(func() {
		for name, fn := range builtinFilters {
			if err := registerFilter(name, fn); err != nil {
				builtinErr = err
				return
			}
		}
	})
	return builtinErr
}

func kindOf(in *pongo2.Value) reflect.Kind {
	v := in.Interface()
	if v == nil {
		return reflect.Invalid
	}
	return reflect.TypeOf(v).Kind()
}

func filterIsString(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	return pongo2.AsValue(kindOf(in) == reflect.String), nil
}

func filterIsArray(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	k := kindOf(in)
	return pongo2.AsValue(k == reflect.Slice || k == reflect.Array), nil
}

func filterIsObject(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	return pongo2.AsValue(kindOf(in) == reflect.Map), nil
}

func filterToJSON(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	b, err := json.Marshal(in.Interface())
	if err != nil {
		return nil, &pongo2.Error{Sender: "filter:to_json", OrigError: err}
	}
	return pongo2.AsSafeValue(string(b)), nil
}

func filterBase64Encode(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	return pongo2.AsValue(base64.StdEncoding.EncodeToString([]byte(in.String()))), nil
}

func filterBase64Decode(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	b, err := base64.StdEncoding.DecodeString(in.String())
	if err != nil {
		return nil, &pongo2.Error{Sender: "filter:base64_decode", OrigError: err}
	}
	return pongo2.AsValue(string(b)), nil
}

func filterMD5(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	return pongo2.AsValue(fmt.Sprintf("%x", md5.Sum([]byte(in.String())))), nil
}

func filterSHA256(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	return pongo2.AsValue(fmt.Sprintf("%x", sha256.Sum256([]byte(in.String())))), nil
}
