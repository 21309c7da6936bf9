package render

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/flosch/pongo2/v6"

	"template-service/internal/common/errors"
	"template-service/internal/common/logging"
	"template-service/internal/common/templates"
	"template-service/internal/form"
	"template-service/internal/formatter"
	"template-service/internal/resolver"
	"template-service/internal/sandbox"
	"template-service/internal/transfer"
)

// Renderer runs render jobs. It is safe for concurrent use; everything a
// job mutates lives in that job's own realm.
type Renderer struct {
	engine   *templates.Engine
	formats  *formatter.Registry
	eval     *sandbox.Evaluator
	resolver *resolver.Resolver
	method   string
	logger   logging.Logger
}

type Option func(*Renderer)

// WithMethod forces a rendering method for every job, whatever the job
// asks for. An empty method leaves the choice to the job.
func WithMethod(method string) Option {
	return func(r *Renderer) { r.method = method }
}

func WithEvaluator(eval *sandbox.Evaluator) Option {
	return func(r *Renderer) { r.eval = eval }
}

func WithFormatter(formats *formatter.Registry) Option {
	return func(r *Renderer) { r.formats = formats }
}

func WithEngine(engine *templates.Engine) Option {
	return func(r *Renderer) { r.engine = engine }
}

func WithLogger(logger logging.Logger) Option {
	return func(r *Renderer) { r.logger = logger }
}

// EngineConfig is the template configuration render jobs need: the default
// sandboxing plus the date filter.
func EngineConfig() *templates.EngineConfig {
	cfg := templates.DefaultConfig()
	cfg.Filters = map[string]pongo2.FilterFunction{"date": filterDate}
	return cfg
}

// New creates a Renderer. Without WithEngine it builds an engine from
// EngineConfig.
func New(opts ...Option) (*Renderer, error) {
	r := &Renderer{logger: logging.Component("render")}
	for _, opt := range opts {
		opt(r)
	}
	if r.engine == nil {
		engine, err := templates.NewEngine(EngineConfig())
		if err != nil {
			return nil, err
		}
		r.engine = engine
	}
	if r.formats == nil {
		r.formats = formatter.New()
	}
	if r.eval == nil {
		r.eval = sandbox.New(sandbox.WithLogger(r.logger))
	}
	r.resolver = resolver.New(r.eval, resolver.WithLogger(r.logger))
	return r, nil
}

// Task renders the job in payload. It has the shape of a dispatcher task.
func (r *Renderer) Task(ctx context.Context, payload map[string]any) (any, error) {
	job, err := ParseJob(payload)
	if err != nil {
		return nil, err
	}
	return r.Render(ctx, job)
}

// Render runs one job. A string template renders to a string; a map of
// fragments renders to a map with every string fragment rendered.
func (r *Renderer) Render(ctx context.Context, job *Job) (any, error) {
	start := time.Now()
	method := r.methodFor(job)
	logger := r.logger.WithContext(ctx).WithFields(logging.String("method", method))

	scope := make(map[string]any, len(job.Context))
	for k, v := range job.Context {
		if k != privateKey {
			scope[k] = v
		}
	}

	var view *resolver.Resolution
	if method == MethodDynamic {
		res, err := r.resolve(ctx, scope)
		if err != nil {
			return nil, err
		}
		scope["data"] = res.Data
		view = res
	}

	realm := transfer.NewTree(transfer.WithJSNumbers(), transfer.WithSourceRunner(ctx, r.eval))
	defer realm.Close()
	if err := r.populate(realm, scope, view); err != nil {
		return nil, err
	}

	out, err := r.renderInput(ctx, job.Render, realm.Root())
	if err != nil {
		logger.Debug("Render failed", logging.Err(err))
		return nil, err
	}
	logger.Debug("Rendered job", logging.Duration("duration", time.Since(start)))
	return out, nil
}

func (r *Renderer) methodFor(job *Job) string {
	if r.method != "" {
		return r.method
	}
	return job.Method()
}

// resolve settles the form in scope against its data and drops every value
// that must not be rendered.
func (r *Renderer) resolve(ctx context.Context, scope map[string]any) (*resolver.Resolution, error) {
	schema, err := form.Parse(scope["form"])
	if err != nil {
		return nil, errors.ValidationError(fmt.Sprintf("invalid form: %v", err))
	}
	data, _ := scope["data"].(map[string]any)
	res, err := r.resolver.Resolve(ctx, schema, data)
	if err != nil {
		return nil, errors.InternalError("resolve submission", err)
	}
	if err := res.Apply(); err != nil {
		return nil, errors.InternalError("apply resolution", err)
	}
	return res, nil
}

// populate transfers the context into realm in key order, then freezes the
// helpers on top of it.
func (r *Renderer) populate(realm *transfer.Tree, scope map[string]any, view *resolver.Resolution) error {
	keys := make([]string, 0, len(scope))
	for k := range scope {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := transfer.Transfer(realm, k, scope[k]); err != nil {
			return errors.TransferError(fmt.Sprintf("transfer context key %q", k), err)
		}
	}
	for name, fn := range r.helpers(view) {
		if err := transfer.Freeze(realm, name, fn); err != nil {
			return errors.TransferError(fmt.Sprintf("install helper %q", name), err)
		}
	}
	return nil
}

func (r *Renderer) renderInput(ctx context.Context, input any, scope map[string]any) (any, error) {
	switch in := input.(type) {
	case string:
		return r.engine.RenderString(ctx, in, scope)
	case map[string]any:
		out := make(map[string]any, len(in))
		for name, fragment := range in {
			s, ok := fragment.(string)
			if !ok {
				out[name] = fragment
				continue
			}
			rendered, err := r.engine.RenderString(ctx, s, scope)
			if err != nil {
				return nil, err
			}
			out[name] = rendered
		}
		return out, nil
	}
	return nil, errors.ValidationError(fmt.Sprintf("cannot render %T", input))
}
