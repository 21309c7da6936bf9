package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestEvaluator() *Evaluator {
	return New(WithTimeout(100 * time.Millisecond))
}

func TestEvaluate(t *testing.T) {
	e := newTestEvaluator()
	ctx := context.Background()
	args := map[string]any{
		"data": map[string]any{"a": 1, "name": "form"},
		"row":  map[string]any{},
	}

	assert.EqualValues(t, 2, e.Evaluate(ctx, "return data.a + 1;", args))
	assert.Equal(t, "FORM", e.Evaluate(ctx, "return data.name.toUpperCase();", args))
	assert.Nil(t, e.Evaluate(ctx, "var x = 1;", args))
	assert.Equal(t, map[string]any{"x": int64(1), "f": nil}, e.Evaluate(ctx, "return {x: 1, f: function () {}};", args))
}

func TestEvaluateCannotMutateArguments(t *testing.T) {
	e := newTestEvaluator()
	data := map[string]any{"a": 1}

	res := e.Evaluate(context.Background(), "data.a = 5; data.b = 6; return data.a;", map[string]any{"data": data})
	assert.EqualValues(t, 1, res)
	assert.Equal(t, map[string]any{"a": 1}, data)
}

func TestEvaluateFaultsBecomeNil(t *testing.T) {
	e := newTestEvaluator()
	ctx := context.Background()

	tests := []struct {
		name string
		body string
	}{
		{"syntax error", "return ((;"},
		{"exception", "throw new Error('boom');"},
		{"reference error", "return missingVariable.x;"},
		{"runaway recursion", "function f() { return f(); } return f();"},
		{"function constructor", "return (function () {}).constructor('return 1')();"},
		{"eval", "return eval('1');"},
		{"generator function constructor", "var G = Object.getPrototypeOf(function* () {}).constructor; return G('yield 6*7')().next().value;"},
		{"async function constructor", "var A = Object.getPrototypeOf(async function () {}).constructor; return A('return 1');"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, e.Evaluate(ctx, tt.body, nil))
		})
	}
}

func TestEvaluateHidesFunctionConstructors(t *testing.T) {
	e := newTestEvaluator()
	ctx := context.Background()

	for _, fn := range []string{"function () {}", "function* () {}", "async function () {}"} {
		got := e.Evaluate(ctx, "return typeof Object.getPrototypeOf("+fn+").constructor;", nil)
		assert.Equal(t, "undefined", got, fn)
	}
	assert.NotEqual(t, "function",
		e.Evaluate(ctx, "return typeof Object.getPrototypeOf(async function* () {}).constructor;", nil))
}

func TestEvaluateTimeout(t *testing.T) {
	e := New(WithTimeout(50 * time.Millisecond))

	start := time.Now()
	assert.Nil(t, e.Evaluate(context.Background(), "while (true) {}", nil))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestEvaluateCancelledContext(t *testing.T) {
	e := newTestEvaluator()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Nil(t, e.Evaluate(ctx, "return 1;", nil))
}

func TestEvaluateSkipsInvalidParameterNames(t *testing.T) {
	e := newTestEvaluator()
	args := map[string]any{"my-key": 1, "default": 2, "ok": 3}
	assert.EqualValues(t, 3, e.Evaluate(context.Background(), "return ok;", args))
}

func TestEvaluateHostCallable(t *testing.T) {
	e := newTestEvaluator()
	args := map[string]any{"double": func(x int) int { return x * 2 }}
	assert.EqualValues(t, 42, e.Evaluate(context.Background(), "return double(21);", args))
}

func TestEvaluateConsole(t *testing.T) {
	e := newTestEvaluator()
	assert.EqualValues(t, 1, e.Evaluate(context.Background(), "console.log('hi', 1); return 1;", nil))
}

func TestInvoke(t *testing.T) {
	e := newTestEvaluator()
	ctx := context.Background()

	assert.EqualValues(t, 42, e.Invoke(ctx, "function (a, b) { return a * b; }", []any{6, 7}))
	assert.Equal(t, "none", e.Invoke(ctx, "function () { return 'none'; }", nil))
	assert.Nil(t, e.Invoke(ctx, "42", nil))
	assert.Nil(t, e.Invoke(ctx, "function (a) { a.x = 1; return a.x; }", []any{map[string]any{}}))
}

func TestCompiledProgramsAreCached(t *testing.T) {
	e := newTestEvaluator()
	ctx := context.Background()

	e.Evaluate(ctx, "return 1;", nil)
	e.Evaluate(ctx, "return 1;", nil)
	stats := e.programs.Stats()
	assert.Equal(t, uint64(1), stats["hits"])
}
