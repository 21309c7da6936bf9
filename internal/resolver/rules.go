package resolver

import (
	"context"

	"template-service/internal/form"
)

// checkCondition re-evaluates the visibility rules of inst and reports
// whether its visibility changed. Rules are tried in order: custom snippet,
// JSON-logic, simple when/eq, static show flag. A rule that yields nothing
// leaves visibility unchanged.
func (p *pass) checkCondition(ctx context.Context, inst *Instance) bool {
	c := inst.Component
	cond := c.Conditional

	var visible bool
	switch {
	case c.CustomConditional != "":
		args := p.args(inst)
		args["show"] = true
		res := p.resolver.eval.Evaluate(ctx, c.CustomConditional+";\nreturn show;", args)
		if res == nil {
			return false
		}
		visible = truthy(res)
	case cond != nil && hasRule(cond.JSON):
		res := p.resolver.eval.EvaluateLogic(ctx, cond.JSON, p.args(inst))
		if res == nil {
			return false
		}
		visible = truthy(res)
	case cond != nil && cond.When != "":
		visible = p.simpleCondition(inst, cond)
	case cond != nil:
		show, ok := cond.StaticShow()
		if !ok {
			return false
		}
		visible = show
	default:
		return false
	}

	if visible == inst.conditionallyVisible {
		return false
	}
	inst.conditionallyVisible = visible
	return true
}

func hasRule(rule any) bool {
	switch r := rule.(type) {
	case nil:
		return false
	case string:
		return r != ""
	case map[string]any:
		return len(r) > 0
	}
	return true
}

// simpleCondition compares the value of the "when" component with eq.
// The referenced value is looked up in the current row first, then in the
// data, where a key nested inside a container is found by name.
func (p *pass) simpleCondition(inst *Instance, cond *form.Conditional) bool {
	var value any
	found := false
	if inst.Row != nil {
		value, found = form.Get(inst.Row, cond.When)
	}
	if !found {
		value, _ = form.Search(p.data, cond.When)
	}

	eq := text(cond.Eq)
	show := text(cond.Show) == "true"
	switch v := value.(type) {
	case map[string]any:
		if selected, ok := v[eq]; ok {
			return text(selected) == text(cond.Show)
		}
	case []any:
		contains := false
		for _, e := range v {
			if text(e) == eq {
				contains = true
				break
			}
		}
		return contains == show
	}
	return (text(value) == eq) == show
}

// calculate re-evaluates the calculated value of inst and reports whether
// the stored value changed.
func (p *pass) calculate(ctx context.Context, inst *Instance) bool {
	c := inst.Component
	if !hasRule(c.CalculateValue) || c.DataKind() != form.DataValue {
		return false
	}
	current, has := inst.Value()
	if c.AllowCalculateOverride && has && !isEmpty(current) {
		return false
	}

	var res any
	switch rule := c.CalculateValue.(type) {
	case string:
		res = p.resolver.eval.Evaluate(ctx, rule+";\nreturn value;", p.args(inst))
	case map[string]any:
		res = p.resolver.eval.EvaluateLogic(ctx, rule, p.args(inst))
	default:
		return false
	}
	if res == nil {
		return false
	}
	if has && sameValue(current, res) {
		return false
	}
	p.write(inst, res)
	return true
}
