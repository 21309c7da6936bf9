package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"template-service/internal/common/logging"
	"template-service/internal/transfer"
)

type logicProgram struct {
	program  *vm.Program
	literals []any
}

// EvaluateLogic applies a JSON-logic rule to args. Variables resolve
// against args, so {"var": "data.total"} reads args["data"]["total"].
func (e *Evaluator) EvaluateLogic(ctx context.Context, rule any, args map[string]any) any {
	if err := ctx.Err(); err != nil {
		return nil
	}
	prog, err := e.compileLogic(rule)
	if err != nil {
		e.logger.Debug("logic rule failed to compile", logging.Err(err))
		return nil
	}
	frozen, err := transfer.Copy(args, transfer.SkipCallables())
	if err != nil {
		e.logger.Debug("logic arguments not transferable", logging.Err(err))
		return nil
	}
	env := map[string]any{"args": frozen, "lit": prog.literals}

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("logic panicked: %v", r)}
			}
		}()
		v, err := expr.Run(prog.program, env)
		done <- outcome{value: v, err: err}
	}()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	select {
	case out := <-done:
		if out.err != nil {
			e.logger.Debug("logic evaluation failed", logging.Err(out.err))
			return nil
		}
		v, err := transfer.Copy(out.value, transfer.SkipCallables())
		if err != nil {
			return nil
		}
		return v
	case <-ctx.Done():
		e.logger.Debug("logic evaluation timed out", logging.Err(ctx.Err()))
		return nil
	}
}

func (e *Evaluator) compileLogic(rule any) (*logicProgram, error) {
	key, err := json.Marshal(rule)
	if err != nil {
		return nil, err
	}
	v, err := e.programs.GetOrCompile("logic:"+string(key), func() (interface{}, error) {
		t := &translator{}
		src, err := t.expr(rule, "args")
		if err != nil {
			return nil, err
		}
		program, err := expr.Compile(src, logicOptions()...)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", src, err)
		}
		return &logicProgram{program: program, literals: t.literals}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*logicProgram), nil
}

func logicOptions() []expr.Option {
	opts := []expr.Option{
		expr.AllowUndefinedVariables(),
		expr.DisableBuiltin("now"),
		expr.DisableBuiltin("date"),
		expr.DisableBuiltin("duration"),
		expr.DisableBuiltin("timezone"),
	}
	for name, fn := range logicFunctions {
		opts = append(opts, expr.Function(name, fn))
	}
	return opts
}

// translator turns a JSON-logic tree into expr source. Every literal is
// passed through the lit slice so rule data never becomes code.
type translator struct {
	literals []any
}

func (t *translator) lit(v any) string {
	t.literals = append(t.literals, v)
	return fmt.Sprintf("lit[%d]", len(t.literals)-1)
}

func (t *translator) expr(node any, scope string) (string, error) {
	switch n := node.(type) {
	case map[string]any:
		if len(n) != 1 {
			return t.lit(n), nil
		}
		for op, raw := range n {
			return t.operation(op, raw, scope)
		}
	case []any:
		parts, err := t.list(n, scope)
		if err != nil {
			return "", err
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	}
	return t.lit(node), nil
}

func (t *translator) list(nodes []any, scope string) ([]string, error) {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		s, err := t.expr(n, scope)
		if err != nil {
			return nil, err
		}
		parts[i] = s
	}
	return parts, nil
}

var callOps = map[string]string{
	"==":     "jl_loose_eq",
	"===":    "jl_strict_eq",
	"+":      "jl_add",
	"-":      "jl_sub",
	"*":      "jl_mul",
	"/":      "jl_div",
	"%":      "jl_mod",
	"min":    "jl_min",
	"max":    "jl_max",
	"cat":    "jl_cat",
	"substr": "jl_substr",
	"in":     "jl_in",
	"merge":  "jl_merge",
	"!!":     "jl_truthy",
	"log":    "jl_first",
}

func (t *translator) operation(op string, raw any, scope string) (string, error) {
	args, ok := raw.([]any)
	if !ok {
		args = []any{raw}
	}
	parts, err := t.list(args, scope)
	if err != nil {
		return "", err
	}
	arg := func(i int) string {
		if i < len(parts) {
			return parts[i]
		}
		return "nil"
	}

	switch op {
	case "var":
		if len(args) == 0 || args[0] == nil {
			return fmt.Sprintf("jl_var(%s, %s, %s)", scope, t.lit(""), arg(1)), nil
		}
		return fmt.Sprintf("jl_var(%s, %s, %s)", scope, arg(0), arg(1)), nil
	case "missing":
		return fmt.Sprintf("jl_missing(%s, [%s])", scope, strings.Join(parts, ", ")), nil
	case "missing_some":
		return fmt.Sprintf("jl_missing_some(%s, %s, %s)", scope, arg(0), arg(1)), nil
	case "if", "?:":
		return ifChain(parts), nil
	case "and":
		return fold(parts, true), nil
	case "or":
		return fold(parts, false), nil
	case "!":
		return fmt.Sprintf("!jl_truthy(%s)", arg(0)), nil
	case "!=":
		return fmt.Sprintf("!jl_loose_eq(%s, %s)", arg(0), arg(1)), nil
	case "!==":
		return fmt.Sprintf("!jl_strict_eq(%s, %s)", arg(0), arg(1)), nil
	case "<", "<=", ">", ">=":
		if len(parts) == 3 && (op == "<" || op == "<=") {
			return fmt.Sprintf("jl_between(%q, %s, %s, %s)", op, parts[0], parts[1], parts[2]), nil
		}
		return fmt.Sprintf("jl_cmp(%q, %s, %s)", op, arg(0), arg(1)), nil
	case "map", "filter", "all", "some", "none":
		return t.arrayOp(op, args, scope)
	case "reduce":
		if len(args) < 2 {
			return "", fmt.Errorf("reduce needs an array and a reducer")
		}
		arr, err := t.expr(args[0], scope)
		if err != nil {
			return "", err
		}
		body, err := t.expr(args[1], `{"current": #, "accumulator": #acc}`)
		if err != nil {
			return "", err
		}
		seed := "nil"
		if len(args) > 2 {
			if seed, err = t.expr(args[2], scope); err != nil {
				return "", err
			}
		}
		return fmt.Sprintf("reduce(jl_array(%s), %s, %s)", arr, body, seed), nil
	}

	if fn, ok := callOps[op]; ok {
		return fmt.Sprintf("%s(%s)", fn, strings.Join(parts, ", ")), nil
	}
	return "", fmt.Errorf("unrecognized operation %q", op)
}

// arrayOp compiles the predicate against the current element, so var
// inside it reads from the element rather than the outer data.
func (t *translator) arrayOp(op string, args []any, scope string) (string, error) {
	if len(args) < 2 {
		return "", fmt.Errorf("%s needs an array and an expression", op)
	}
	arr, err := t.expr(args[0], scope)
	if err != nil {
		return "", err
	}
	body, err := t.expr(args[1], "#")
	if err != nil {
		return "", err
	}
	coll := "jl_array(" + arr + ")"
	switch op {
	case "map":
		return fmt.Sprintf("map(%s, %s)", coll, body), nil
	case "filter":
		return fmt.Sprintf("filter(%s, jl_truthy(%s))", coll, body), nil
	case "all":
		return fmt.Sprintf("(len(%s) > 0 && all(%s, jl_truthy(%s)))", coll, coll, body), nil
	case "some":
		return fmt.Sprintf("any(%s, jl_truthy(%s))", coll, body), nil
	default:
		return fmt.Sprintf("none(%s, jl_truthy(%s))", coll, body), nil
	}
}

func ifChain(parts []string) string {
	switch len(parts) {
	case 0:
		return "nil"
	case 1:
		return parts[0]
	case 2:
		return fmt.Sprintf("(jl_truthy(%s) ? %s : nil)", parts[0], parts[1])
	}
	return fmt.Sprintf("(jl_truthy(%s) ? %s : %s)", parts[0], parts[1], ifChain(parts[2:]))
}

// fold builds short-circuit and/or chains that return the deciding
// operand, as JavaScript does.
func fold(parts []string, and bool) string {
	if len(parts) == 0 {
		return "nil"
	}
	if len(parts) == 1 {
		return parts[0]
	}
	rest := fold(parts[1:], and)
	if and {
		return fmt.Sprintf("(jl_truthy(%s) ? %s : %s)", parts[0], rest, parts[0])
	}
	return fmt.Sprintf("(jl_truthy(%s) ? %s : %s)", parts[0], parts[0], rest)
}
