package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"template-service/internal/common/logging"
	"template-service/internal/form"
	"template-service/internal/transfer"
)

// DefaultMaxPasses bounds how often conditions and calculations are
// re-evaluated while values keep changing.
const DefaultMaxPasses = 5

// ErrAlreadyApplied is returned by a second call to Resolution.Apply.
var ErrAlreadyApplied = errors.New("resolution already applied")

// Evaluator runs untrusted snippets. A nil result means the snippet
// faulted, timed out or returned nothing.
type Evaluator interface {
	Evaluate(ctx context.Context, body string, args map[string]any) any
	EvaluateLogic(ctx context.Context, rule any, args map[string]any) any
}

type Resolver struct {
	eval      Evaluator
	maxPasses int
	logger    logging.Logger
}

type Option func(*Resolver)

func WithMaxPasses(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxPasses = n
		}
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func New(eval Evaluator, opts ...Option) *Resolver {
	r := &Resolver{
		eval:      eval,
		maxPasses: DefaultMaxPasses,
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Unset is a value queued for removal.
type Unset struct {
	Path   string
	Key    string
	Scope  map[string]any
	Reason string
}

// Resolution is the outcome of resolving a submission against a schema.
// Data holds the rebuilt submission; removals happen on Apply.
type Resolution struct {
	Data      map[string]any
	Instances []*Instance
	Unsets    []Unset

	byPath  map[string]*Instance
	applied atomic.Bool
}

// Visible reports whether the component at path is visible. Unknown paths
// are reported as visible.
func (r *Resolution) Visible(path string) bool {
	if inst, ok := r.byPath[path]; ok {
		return inst.Visible()
	}
	return true
}

// Instance returns the instance at a data path such as "grid.1.qty".
func (r *Resolution) Instance(path string) (*Instance, bool) {
	inst, ok := r.byPath[path]
	return inst, ok
}

// Walk visits every instance depth first.
func (r *Resolution) Walk(fn func(*Instance) form.WalkResult) {
	walkInstances(r.Instances, fn)
}

// Apply removes every queued value from Data. It runs once.
func (r *Resolution) Apply() error {
	if !r.applied.CompareAndSwap(false, true) {
		return ErrAlreadyApplied
	}
	for _, u := range r.Unsets {
		delete(u.Scope, u.Key)
	}
	return nil
}

// Resolve settles visibility and calculated values of schema for data.
// data itself is never modified. The tracked pass starts from the baseline
// result, so calculated values are part of what it classifies.
func (r *Resolver) Resolve(ctx context.Context, schema *form.Schema, data map[string]any) (*Resolution, error) {
	if schema == nil {
		return nil, fmt.Errorf("resolve: nil schema")
	}
	if data == nil {
		data = map[string]any{}
	}

	baseline := &pass{resolver: r}
	baseline.run(ctx, schema.Components, data, nil)
	visibility := make(map[string]bool)
	walkInstances(baseline.roots, func(inst *Instance) form.WalkResult {
		visibility[inst.Path] = inst.conditionallyVisible
		return form.Continue
	})

	tracked := &pass{resolver: r, tracking: true}
	tracked.run(ctx, schema.Components, baseline.data, visibility)
	tracked.reconcile()

	res := &Resolution{
		Data:      tracked.data,
		Instances: tracked.roots,
		Unsets:    tracked.unsets,
		byPath:    make(map[string]*Instance),
	}
	walkInstances(res.Instances, func(inst *Instance) form.WalkResult {
		res.byPath[inst.Path] = inst
		return form.Continue
	})

	r.logger.Debug("Resolved submission",
		logging.Int("instances", len(res.byPath)),
		logging.Int("unsets", len(res.Unsets)))
	return res, nil
}

// pass binds a copy of the submission to the schema and settles it. A tracking
// pass classifies every write.
type pass struct {
	resolver   *Resolver
	tracking   bool
	data       map[string]any
	roots      []*Instance
	all        []*Instance
	candidates []*Instance
	unsets     []Unset
}

func (p *pass) run(ctx context.Context, components []*form.Component, src map[string]any, visibility map[string]bool) {
	p.data, _ = clone(src).(map[string]any)
	if p.data == nil {
		p.data = make(map[string]any)
	}
	p.roots = p.build(components, p.data, nil, -1, nil, "", visibility)
	walkInstances(p.roots, func(inst *Instance) form.WalkResult {
		p.all = append(p.all, inst)
		return form.Continue
	})
	p.settle(ctx)
}

// build binds components to scope, writing every submitted value back in
// place so a tracking pass sees each one. Keys the schema does not know are
// left untouched.
func (p *pass) build(components []*form.Component, scope map[string]any, row map[string]any, rowIndex int, parent *Instance, prefix string, visibility map[string]bool) []*Instance {
	var out []*Instance
	for _, c := range components {
		if c == nil {
			continue
		}
		inst := &Instance{
			Component:            c,
			Parent:               parent,
			Path:                 prefix + c.Key,
			Scope:                scope,
			Row:                  row,
			RowIndex:             rowIndex,
			conditionallyVisible: true,
		}
		if v, ok := visibility[inst.Path]; ok {
			inst.conditionallyVisible = v
		}

		switch c.DataKind() {
		case form.DataValue:
			if v, ok := scope[c.Key]; ok {
				p.write(inst, v)
			}
		case form.DataObject:
			child, ok := scope[c.Key].(map[string]any)
			if ok {
				p.write(inst, child)
			} else {
				child = make(map[string]any)
				scope[c.Key] = child
			}
			for _, list := range c.Children() {
				inst.Children = append(inst.Children,
					p.build(list, child, row, rowIndex, inst, inst.Path+".", visibility)...)
			}
		case form.DataArray:
			rows, ok := scope[c.Key].([]any)
			if !ok {
				break
			}
			p.write(inst, rows)
			for i, r := range rows {
				rowData, ok := r.(map[string]any)
				if !ok {
					rowData = make(map[string]any)
					rows[i] = rowData
				}
				rowPrefix := fmt.Sprintf("%s.%d.", inst.Path, i)
				for _, list := range c.Children() {
					inst.Children = append(inst.Children,
						p.build(list, rowData, rowData, i, inst, rowPrefix, visibility)...)
				}
			}
		default:
			for _, list := range c.Children() {
				inst.Children = append(inst.Children,
					p.build(list, scope, row, rowIndex, inst, prefix, visibility)...)
			}
		}
		out = append(out, inst)
	}
	return out
}

func clone(v any) any {
	out, err := transfer.Copy(v, transfer.SkipCallables())
	if err != nil {
		return v
	}
	return out
}

// write stores v for inst. A tracking pass first decides whether the value
// must be dropped later: non-persistent values always, hidden values that
// clear on hide once final visibility is known, passwords that still hold
// their default.
func (p *pass) write(inst *Instance, v any) {
	if p.tracking {
		c := inst.Component
		switch {
		case !c.Persistent.Stored():
			p.unset(inst, "not persistent")
		case c.ClearsOnHide() && !inst.Visible():
			p.candidates = append(p.candidates, inst)
		case c.Type == "password" && sameValue(v, passwordDefault(c)):
			p.unset(inst, "password default")
		}
	}
	inst.Scope[inst.Key()] = v
}

func passwordDefault(c *form.Component) any {
	if c.DefaultValue == nil {
		return ""
	}
	return c.DefaultValue
}

func (p *pass) unset(inst *Instance, reason string) {
	p.unsets = append(p.unsets, Unset{
		Path:   inst.Path,
		Key:    inst.Key(),
		Scope:  inst.Scope,
		Reason: reason,
	})
}

// reconcile queues hidden-value candidates that are still hidden once the
// submission has settled.
func (p *pass) reconcile() {
	seen := make(map[*Instance]bool)
	for _, inst := range p.candidates {
		if seen[inst] {
			continue
		}
		seen[inst] = true
		if !inst.Visible() {
			p.unset(inst, "hidden")
		}
	}
}

func (p *pass) settle(ctx context.Context) {
	for i := 0; i < p.resolver.maxPasses; i++ {
		if ctx.Err() != nil {
			return
		}
		changed := false
		for _, inst := range p.all {
			if p.checkCondition(ctx, inst) {
				changed = true
			}
		}
		for _, inst := range p.all {
			if p.calculate(ctx, inst) {
				changed = true
			}
		}
		if !changed {
			return
		}
	}
	p.resolver.logger.Warn("Submission did not settle",
		logging.Int("passes", p.resolver.maxPasses),
		logging.Bool("tracking", p.tracking))
}

// args are the named arguments every snippet sees.
func (p *pass) args(inst *Instance) map[string]any {
	row := inst.Row
	if row == nil {
		row = p.data
	}
	value, _ := inst.Value()
	return map[string]any{
		"data":      p.data,
		"row":       row,
		"component": inst.Component.Attrs,
		"value":     value,
		"input":     value,
		"rowIndex":  inst.RowIndex,
	}
}
