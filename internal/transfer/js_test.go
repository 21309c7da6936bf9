package transfer

import (
	"errors"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, vm *goja.Runtime, src string) any {
	t.Helper()
	v, err := vm.RunString(src)
	require.NoError(t, err)
	return v.Export()
}

func TestJSTransferPreservesCycles(t *testing.T) {
	vm := goja.New()
	realm := NewJSContext(vm)

	a := map[string]any{"name": "a"}
	a["self"] = a
	require.NoError(t, Transfer(realm, "a", a))

	assert.Equal(t, true, run(t, vm, "a.self === a"))
	assert.Equal(t, "a", run(t, vm, "a.self.self.name"))
}

func TestJSFreeze(t *testing.T) {
	vm := goja.New()
	realm := NewJSContext(vm)

	require.NoError(t, Freeze(realm, "args", map[string]any{"data": map[string]any{"x": 1}}))
	assert.Equal(t, int64(1), run(t, vm, "args.data.x = 5; args.data.x"))
	assert.Equal(t, true, run(t, vm, "Object.isFrozen(args) && Object.isFrozen(args.data)"))

	err := realm.SetValue(Path{"args", "y"}, 1)
	assert.ErrorIs(t, err, ErrFrozen)
}

func TestJSHostFunctions(t *testing.T) {
	vm := goja.New()
	realm := NewJSContext(vm)

	boom := errors.New("boom")
	require.NoError(t, Transfer(realm, "add", func(a, b int) int { return a + b }))
	require.NoError(t, Transfer(realm, "fail", func() error { return boom }))
	require.NoError(t, Transfer(realm, "pair", func() map[string]any { return map[string]any{"k": []int{1, 2}} }))

	assert.Equal(t, int64(5), run(t, vm, "add(2, 3)"))
	assert.Equal(t, "caught", run(t, vm, "try { fail(); 'no' } catch (e) { 'caught' }"))
	assert.Equal(t, int64(2), run(t, vm, "pair().k[1]"))
}

func TestJSHostFunctionCannotMutateCaller(t *testing.T) {
	vm := goja.New()
	realm := NewJSContext(vm)

	require.NoError(t, Transfer(realm, "mutate", func(m map[string]any) { m["x"] = "host" }))
	assert.Equal(t, "js", run(t, vm, "var o = {x: 'js'}; mutate(o); o.x"))
}

func TestJSSource(t *testing.T) {
	vm := goja.New()
	realm := NewJSContext(vm)

	require.NoError(t, Transfer(realm, "helpers", map[string]any{
		"double": Source("function (a) { return a * 2 }"),
	}))
	assert.Equal(t, int64(42), run(t, vm, "helpers.double(21)"))

	err := Transfer(realm, "bad", Source("42"))
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestJSTornDown(t *testing.T) {
	vm := goja.New()
	realm := NewJSContext(vm)
	realm.Close()

	err := Transfer(realm, "v", map[string]any{"a": 1})
	assert.ErrorIs(t, err, ErrTornDown)
}
