package sandbox

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dop251/goja"

	"template-service/internal/common/cache"
	"template-service/internal/common/logging"
	"template-service/internal/transfer"
)

const (
	// DefaultTimeout bounds a single snippet evaluation.
	DefaultTimeout = 250 * time.Millisecond
	// DefaultMaxCallStack bounds snippet recursion.
	DefaultMaxCallStack = 512
)

var errNotFunction = errors.New("source does not evaluate to a function")

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

var reserved = map[string]bool{
	"break": true, "case": true, "catch": true, "class": true, "const": true, "continue": true,
	"debugger": true, "default": true, "delete": true, "do": true, "else": true, "enum": true,
	"export": true, "extends": true, "false": true, "finally": true, "for": true, "function": true,
	"if": true, "import": true, "in": true, "instanceof": true, "new": true, "null": true,
	"return": true, "super": true, "switch": true, "this": true, "throw": true, "true": true,
	"try": true, "typeof": true, "var": true, "void": true, "while": true, "with": true,
	"yield": true, "let": true, "static": true, "await": true, "implements": true,
	"interface": true, "package": true, "private": true, "protected": true, "public": true,
}

const hardenScript = `(function () {
	Object.defineProperty(Function.prototype, 'constructor', { value: undefined });
	[Object, Array, String, Number, Boolean, Function, Date, RegExp, Error, Math, JSON, Promise, Symbol].forEach(function (o) {
		if (!o) return;
		if (o.prototype) Object.freeze(o.prototype);
		Object.freeze(o);
	});
})();`

// functionPrototypes reach the prototypes of generator and async functions,
// whose constructors compile source text like Function does. A syntax this
// goja build cannot parse has no constructor to close.
var functionPrototypes = compilePrototypes(
	"Object.getPrototypeOf(function* () {})",
	"Object.getPrototypeOf(async function () {})",
	"Object.getPrototypeOf(async function* () {})",
)

func compilePrototypes(exprs ...string) []*goja.Program {
	var progs []*goja.Program
	for _, expr := range exprs {
		src := "(function (p) { Object.defineProperty(p, 'constructor', { value: undefined }); Object.freeze(p); })(" + expr + ");"
		prog, err := goja.Compile("", src, true)
		if err != nil {
			continue
		}
		progs = append(progs, prog)
	}
	return progs
}

// Evaluator runs snippets. It is safe for concurrent use; every call gets
// its own runtime.
type Evaluator struct {
	timeout  time.Duration
	maxStack int
	programs *cache.Cache
	logger   logging.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger routes evaluation failures and console output to logger.
func WithLogger(logger logging.Logger) Option {
	return func(e *Evaluator) { e.logger = logger }
}

// WithCache shares a compiled program cache.
func WithCache(c *cache.Cache) Option {
	return func(e *Evaluator) { e.programs = c }
}

// WithMaxCallStack overrides DefaultMaxCallStack.
func WithMaxCallStack(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.maxStack = n
		}
	}
}

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		timeout:  DefaultTimeout,
		maxStack: DefaultMaxCallStack,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.programs == nil {
		e.programs = cache.New(10*time.Minute, 5*time.Minute, cache.DefaultMaxItems)
	}
	return e
}

// Evaluate runs body as the body of a function whose parameters are the
// keys of args, and returns what the function returns.
func (e *Evaluator) Evaluate(ctx context.Context, body string, args map[string]any) any {
	if args == nil {
		args = map[string]any{}
	}
	src := "(function({" + strings.Join(argNames(args), ", ") + "}) {\n" + body + "\n})(args)"
	prog, err := e.compile(src)
	if err != nil {
		e.logger.Debug("snippet failed to compile", logging.Err(err))
		return nil
	}

	res, err := e.run(ctx, func(vm *goja.Runtime, realm *transfer.JSContext) (goja.Value, error) {
		if err := transfer.Freeze(realm, "args", args); err != nil {
			return nil, err
		}
		return vm.RunProgram(prog)
	})
	if err != nil {
		e.logger.Debug("snippet evaluation failed", logging.Err(err))
		return nil
	}
	return res
}

// Invoke calls the function whose source is given with positional args.
func (e *Evaluator) Invoke(ctx context.Context, source string, args []any) any {
	prog, err := e.compile("(" + source + ")")
	if err != nil {
		e.logger.Debug("function failed to compile", logging.Err(err))
		return nil
	}

	res, err := e.run(ctx, func(vm *goja.Runtime, realm *transfer.JSContext) (goja.Value, error) {
		if err := transfer.Freeze(realm, "args", args); err != nil {
			return nil, err
		}
		v, err := vm.RunProgram(prog)
		if err != nil {
			return nil, err
		}
		fn, ok := goja.AssertFunction(v)
		if !ok {
			return nil, errNotFunction
		}
		argv := make([]goja.Value, len(args))
		if len(args) > 0 {
			list := vm.Get("args").ToObject(vm)
			for i := range args {
				argv[i] = list.Get(strconv.Itoa(i))
			}
		}
		return fn(goja.Undefined(), argv...)
	})
	if err != nil {
		e.logger.Debug("function invocation failed", logging.Err(err))
		return nil
	}
	return res
}

func (e *Evaluator) compile(src string) (*goja.Program, error) {
	v, err := e.programs.GetOrCompile("js:"+src, func() (interface{}, error) {
		return goja.Compile("snippet", src, false)
	})
	if err != nil {
		return nil, err
	}
	return v.(*goja.Program), nil
}

func (e *Evaluator) run(ctx context.Context, exec func(*goja.Runtime, *transfer.JSContext) (goja.Value, error)) (result any, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vm := goja.New()
	vm.SetMaxCallStackSize(e.maxStack)
	realm := transfer.NewJSContext(vm)
	defer realm.Close()
	e.installConsole(vm)
	for _, prog := range functionPrototypes {
		if _, err := vm.RunProgram(prog); err != nil {
			return nil, fmt.Errorf("harden runtime: %w", err)
		}
	}
	if _, err := vm.RunString(hardenScript); err != nil {
		return nil, fmt.Errorf("harden runtime: %w", err)
	}
	_ = vm.Set("eval", goja.Undefined())
	_ = vm.Set("Function", goja.Undefined())

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("snippet panicked: %v", r)
		}
	}()

	v, err := exec(vm, realm)
	if err != nil {
		return nil, err
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	return transfer.Copy(v.Export(), transfer.SkipCallables())
}

func (e *Evaluator) installConsole(vm *goja.Runtime) {
	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error"} {
		level := level
		_ = console.Set(level, func(args ...interface{}) {
			e.logger.Debug("snippet console", logging.String("level", level), logging.Any("args", args))
		})
	}
	_ = vm.Set("console", console)
}

func argNames(args map[string]any) []string {
	names := make([]string, 0, len(args))
	for k := range args {
		if identifier.MatchString(k) && !reserved[k] {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}
