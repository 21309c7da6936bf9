package resolver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"template-service/internal/form"
	"template-service/internal/sandbox"
)

func resolve(t *testing.T, schemaJSON, dataJSON string) *Resolution {
	t.Helper()
	schema, err := form.ParseJSON([]byte(schemaJSON))
	require.NoError(t, err)
	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(dataJSON), &data))

	res, err := New(sandbox.New()).Resolve(context.Background(), schema, data)
	require.NoError(t, err)
	return res
}

func applied(t *testing.T, schemaJSON, dataJSON string) map[string]any {
	t.Helper()
	res := resolve(t, schemaJSON, dataJSON)
	require.NoError(t, res.Apply())
	return res.Data
}

func TestRedaction(t *testing.T) {
	data := applied(t,
		`[{"key":"a","persistent":false},{"key":"b","conditional":{"show":false}},{"key":"c"}]`,
		`{"a":1,"b":2,"c":3}`)
	assert.Equal(t, map[string]any{"c": 3.0}, data)
}

func TestClientOnlyIsRemoved(t *testing.T) {
	data := applied(t,
		`[{"key":"a","persistent":"client-only"},{"key":"b","persistent":true}]`,
		`{"a":"x","b":"y"}`)
	assert.Equal(t, map[string]any{"b": "y"}, data)
}

func TestUnknownKeysAreKept(t *testing.T) {
	data := applied(t, `[{"key":"a"}]`, `{"a":"x","extra":"y"}`)
	assert.Equal(t, map[string]any{"a": "x", "extra": "y"}, data)
}

func TestResolveDoesNotModifyInput(t *testing.T) {
	schema, err := form.ParseJSON([]byte(`[{"key":"a","persistent":false}]`))
	require.NoError(t, err)
	data := map[string]any{"a": "secret"}

	res, err := New(sandbox.New()).Resolve(context.Background(), schema, data)
	require.NoError(t, err)
	require.NoError(t, res.Apply())

	assert.Equal(t, map[string]any{"a": "secret"}, data)
	assert.Empty(t, res.Data)
}

func TestApplyRunsOnce(t *testing.T) {
	res := resolve(t, `[{"key":"a"}]`, `{"a":1}`)
	require.NoError(t, res.Apply())
	assert.ErrorIs(t, res.Apply(), ErrAlreadyApplied)
}

func TestCustomConditional(t *testing.T) {
	schema := `[{"key":"a"},{"key":"b","customConditional":"show = data.a === 'yes'"}]`

	assert.Equal(t, map[string]any{"a": "no"}, applied(t, schema, `{"a":"no","b":"x"}`))
	assert.Equal(t, map[string]any{"a": "yes", "b": "x"}, applied(t, schema, `{"a":"yes","b":"x"}`))
}

func TestFaultingConditionLeavesVisibilityUnchanged(t *testing.T) {
	schema := `[{"key":"a"},{"key":"b","customConditional":"show = data.missing.deep"}]`

	res := resolve(t, schema, `{"a":"no","b":"x"}`)
	assert.True(t, res.Visible("b"))
	require.NoError(t, res.Apply())
	assert.Equal(t, "x", res.Data["b"])
}

func TestSimpleConditional(t *testing.T) {
	schema := `[{"key":"a"},{"key":"b","conditional":{"show":true,"when":"a","eq":"yes"}}]`

	assert.NotContains(t, applied(t, schema, `{"a":"no","b":"x"}`), "b")
	assert.Contains(t, applied(t, schema, `{"a":"yes","b":"x"}`), "b")

	hideWhen := `[{"key":"a"},{"key":"b","conditional":{"show":"false","when":"a","eq":"1"}}]`
	assert.NotContains(t, applied(t, hideWhen, `{"a":1,"b":"x"}`), "b")
	assert.Contains(t, applied(t, hideWhen, `{"a":2,"b":"x"}`), "b")
}

func TestSimpleConditionalFindsNestedKey(t *testing.T) {
	schema := `[{"key":"c","type":"container","components":[{"key":"a"}]},
		{"key":"b","conditional":{"show":true,"when":"a","eq":"yes"}}]`

	res := resolve(t, schema, `{"c":{"a":"yes"},"b":"x"}`)
	assert.True(t, res.Visible("b"))
	require.NoError(t, res.Apply())
	assert.Equal(t, map[string]any{"c": map[string]any{"a": "yes"}, "b": "x"}, res.Data)

	assert.NotContains(t, applied(t, schema, `{"c":{"a":"no"},"b":"x"}`), "b")
}

func TestSimpleConditionalSelectBoxes(t *testing.T) {
	schema := `[{"key":"opts","type":"selectboxes"},{"key":"b","conditional":{"show":true,"when":"opts","eq":"red"}}]`

	assert.Contains(t, applied(t, schema, `{"opts":{"red":true,"blue":false},"b":"x"}`), "b")
	assert.NotContains(t, applied(t, schema, `{"opts":{"red":false,"blue":true},"b":"x"}`), "b")
}

func TestJSONLogicConditional(t *testing.T) {
	schema := `[{"key":"a"},{"key":"b","conditional":{"json":{"==":[{"var":"data.a"},"yes"]}}}]`

	assert.NotContains(t, applied(t, schema, `{"a":"no","b":"x"}`), "b")
	assert.Contains(t, applied(t, schema, `{"a":"yes","b":"x"}`), "b")
}

func TestCalculatedValue(t *testing.T) {
	data := applied(t,
		`[{"key":"x"},{"key":"double","calculateValue":"value = data.x * 2"},{"key":"triple","calculateValue":{"*":[{"var":"data.x"},3]}}]`,
		`{"x":3}`)
	assert.EqualValues(t, 6, data["double"])
	assert.EqualValues(t, 9, data["triple"])
}

func TestCalculationOverride(t *testing.T) {
	schema := `[{"key":"x"},{"key":"y","allowCalculateOverride":true,"calculateValue":"value = data.x + 1"}]`

	assert.EqualValues(t, 42, applied(t, schema, `{"x":1,"y":42}`)["y"])
	assert.EqualValues(t, 2, applied(t, schema, `{"x":1}`)["y"])
}

func TestCalculationChangesLaterVisibility(t *testing.T) {
	schema := `[
		{"key":"a"},
		{"key":"b","conditional":{"show":true,"when":"size","eq":"big"}},
		{"key":"size","calculateValue":"value = data.a > 5 ? 'big' : 'small'"}
	]`

	data := applied(t, schema, `{"a":10,"b":"keep"}`)
	assert.Equal(t, "big", data["size"])
	assert.Equal(t, "keep", data["b"])

	data = applied(t, schema, `{"a":1,"b":"drop"}`)
	assert.Equal(t, "small", data["size"])
	assert.NotContains(t, data, "b")
}

func TestHiddenParentHidesChildren(t *testing.T) {
	schema := `[
		{"key":"panel","type":"panel","conditional":{"show":false},"components":[{"key":"inner"}]},
		{"key":"outer"}
	]`

	res := resolve(t, schema, `{"inner":"x","outer":"y"}`)
	assert.False(t, res.Visible("inner"))
	inner, ok := res.Instance("inner")
	require.True(t, ok)
	assert.True(t, inner.ConditionallyVisible())
	assert.False(t, inner.ParentVisible())

	require.NoError(t, res.Apply())
	assert.Equal(t, map[string]any{"outer": "y"}, res.Data)
}

func TestClearOnHideOptOut(t *testing.T) {
	data := applied(t,
		`[{"key":"b","clearOnHide":false,"conditional":{"show":false}}]`,
		`{"b":"kept"}`)
	assert.Equal(t, map[string]any{"b": "kept"}, data)
}

func TestContainerNesting(t *testing.T) {
	schema := `[{"key":"addr","type":"container","components":[
		{"key":"city"},
		{"key":"zip","persistent":false}
	]}]`

	data := applied(t, schema, `{"addr":{"city":"Oslo","zip":"0150"}}`)
	assert.Equal(t, map[string]any{"addr": map[string]any{"city": "Oslo"}}, data)
}

func TestDataGridRows(t *testing.T) {
	schema := `[{"key":"grid","type":"datagrid","components":[
		{"key":"kind"},
		{"key":"detail","conditional":{"show":true,"when":"kind","eq":"a"}}
	]}]`

	res := resolve(t, schema, `{"grid":[{"kind":"a","detail":"x"},{"kind":"b","detail":"y"}]}`)
	assert.True(t, res.Visible("grid.0.detail"))
	assert.False(t, res.Visible("grid.1.detail"))

	require.NoError(t, res.Apply())
	assert.Equal(t, []any{
		map[string]any{"kind": "a", "detail": "x"},
		map[string]any{"kind": "b"},
	}, res.Data["grid"])
}

func TestRowCalculation(t *testing.T) {
	schema := `[{"key":"grid","type":"datagrid","components":[
		{"key":"qty"},
		{"key":"total","calculateValue":"value = row.qty * 10"}
	]}]`

	data := applied(t, schema, `{"grid":[{"qty":1},{"qty":2}]}`)
	rows := data["grid"].([]any)
	assert.EqualValues(t, 10, rows[0].(map[string]any)["total"])
	assert.EqualValues(t, 20, rows[1].(map[string]any)["total"])
}

func TestPasswordDefault(t *testing.T) {
	schema := `[{"key":"pw","type":"password"}]`

	assert.NotContains(t, applied(t, schema, `{"pw":""}`), "pw")
	assert.Equal(t, "secret", applied(t, schema, `{"pw":"secret"}`)["pw"])
}

func TestWalkVisitsInstancesInOrder(t *testing.T) {
	res := resolve(t,
		`[{"key":"p","type":"panel","components":[{"key":"a"}]},{"key":"g","type":"datagrid","components":[{"key":"q"}]}]`,
		`{"a":1,"g":[{"q":1},{"q":2}]}`)

	var paths []string
	res.Walk(func(inst *Instance) form.WalkResult {
		paths = append(paths, inst.Path)
		return form.Continue
	})
	assert.Equal(t, []string{"p", "a", "g", "g.0.q", "g.1.q"}, paths)
}
