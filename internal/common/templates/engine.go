package templates

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/flosch/pongo2/v6"

	"template-service/internal/common/cache"
	"template-service/internal/common/errors"
)

// Engine compiles and executes templates within one pongo2 template set.
type Engine struct {
	set    *pongo2.TemplateSet
	cache  *cache.Cache
	config *EngineConfig
}

// EngineConfig configures the template engine behavior
type EngineConfig struct {
	// Security settings
	BannedTags       []string      `yaml:"banned_tags"`
	BannedFilters    []string      `yaml:"banned_filters"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	MaxTemplateSize  int           `yaml:"max_template_size"`

	// Performance settings
	CacheTemplates bool `yaml:"cache_templates"`
	CacheSize      int  `yaml:"cache_size"`

	// Filters are added to the built-in ones. Filters are process-wide in
	// pongo2, so the last engine to register a name wins.
	Filters map[string]pongo2.FilterFunction `yaml:"-"`
}

// DefaultBannedTags reach the file system, or recurse without bound
// (macro).
var DefaultBannedTags = []string{"include", "extends", "import", "ssi", "macro"}

// TemplateResult contains the result of template execution
type TemplateResult struct {
	Output   string        `json:"output"`
	Duration time.Duration `json:"duration"`
	CacheHit bool          `json:"cache_hit"`
	Warnings []string      `json:"warnings"`
}

// DefaultConfig returns the configuration used when NewEngine gets nil.
func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		BannedTags:       DefaultBannedTags,
		MaxExecutionTime: 15 * time.Second,
		MaxTemplateSize:  1024 * 1024, // 1MB
		CacheTemplates:   true,
		CacheSize:        cache.DefaultMaxItems,
	}
}

// NewEngine creates a template engine. A nil config means DefaultConfig.
func NewEngine(config *EngineConfig) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}

	set := pongo2.NewSet("render", denyLoader{})
	for _, tag := range config.BannedTags {
		if err := set.BanTag(tag); err != nil {
			return nil, errors.ConfigError(fmt.Sprintf("ban tag %q: %v", tag, err))
		}
	}
	for _, filter := range config.BannedFilters {
		if err := set.BanFilter(filter); err != nil {
			return nil, errors.ConfigError(fmt.Sprintf("ban filter %q: %v", filter, err))
		}
	}

	if err := registerBuiltinFilters(); err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("register filters: %v", err))
	}
	for name, fn := range config.Filters {
		if err := registerFilter(name, fn); err != nil {
			return nil, errors.ConfigError(fmt.Sprintf("register filter %q: %v", name, err))
		}
	}

	engine := &Engine{set: set, config: config}
	if config.CacheTemplates {
		engine.cache = cache.New(time.Hour, 10*time.Minute, config.CacheSize)
	}
	return engine, nil
}

// compiled is a parsed template plus the literal text cut out of it.
type compiled struct {
	tpl      *pongo2.Template
	literals map[string]string
}

// Compile parses a template, serving it from the cache when possible.
func (e *Engine) Compile(templateStr string) (*pongo2.Template, error) {
	c, _, err := e.compile(templateStr)
	if err != nil {
		return nil, err
	}
	return c.tpl, nil
}

func (e *Engine) compile(templateStr string) (*compiled, bool, error) {
	if e.config.MaxTemplateSize > 0 && len(templateStr) > e.config.MaxTemplateSize {
		return nil, false, errors.ValidationError(fmt.Sprintf("template size %d exceeds maximum %d", len(templateStr), e.config.MaxTemplateSize))
	}

	build := func() (interface{}, error) {
		sanitized, literals := Sanitize(templateStr)
		tpl, err := e.set.FromString("{% autoescape off %}" + sanitized + "{% endautoescape %}")
		if err != nil {
			return nil, errors.RenderError("template compilation failed", err)
		}
		return &compiled{tpl: tpl, literals: literals}, nil
	}

	if e.cache == nil {
		c, err := build()
		if err != nil {
			return nil, false, err
		}
		return c.(*compiled), false, nil
	}

	key := e.generateTemplateName(templateStr)
	if cached, ok := e.cache.Get(key); ok {
		return cached.(*compiled), true, nil
	}
	c, err := build()
	if err != nil {
		return nil, false, err
	}
	e.cache.Set(key, c)
	return c.(*compiled), false, nil
}

// Execute renders templateStr with data. Keys of data that are not valid
// identifiers are left out and reported as warnings.
func (e *Engine) Execute(ctx context.Context, templateStr string, data map[string]any) (*TemplateResult, error) {
	start := time.Now()
	result := &TemplateResult{Warnings: make([]string, 0)}

	c, hit, err := e.compile(templateStr)
	if err != nil {
		return nil, err
	}
	result.CacheHit = hit

	tplCtx := make(pongo2.Context, len(data)+len(c.literals))
	for k, v := range data {
		if !identifier.MatchString(k) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("context key %q is not a valid identifier", k))
			continue
		}
		tplCtx[k] = v
	}
	for k, v := range c.literals {
		tplCtx[k] = v
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if e.config.MaxExecutionTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.MaxExecutionTime)
		defer cancel()
	}

	type outcome struct {
		out string
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("template panicked: %v", r)}
			}
		}()
		out, err := c.tpl.Execute(tplCtx)
		done <- outcome{out: out, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return nil, errors.RenderError("template execution failed", o.err)
		}
		result.Output = Unescape(o.out)
	case <-ctx.Done():
		return nil, errors.TimeoutError("template execution")
	}

	result.Duration = time.Since(start)
	return result, nil
}

// RenderString is Execute returning only the output.
func (e *Engine) RenderString(ctx context.Context, templateStr string, data map[string]any) (string, error) {
	result, err := e.Execute(ctx, templateStr, data)
	if err != nil {
		return "", err
	}
	return result.Output, nil
}

// generateTemplateName generates a unique name for template caching
func (e *Engine) generateTemplateName(templateStr string) string {
	hash := md5.Sum([]byte(templateStr))
	return fmt.Sprintf("tmpl_%x", hash)
}

// CacheStats reports template cache usage.
func (e *Engine) CacheStats() map[string]interface{} {
	return e.cache.Stats()
}

// ClearCache clears all cached templates
func (e *Engine) ClearCache() {
	e.cache.Flush()
}

var identifier = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// breakout matches expressions that walk to a constructor or call the
// result of an index expression.
var breakout = regexp.MustCompile(`\{\{(.*(\.constructor|\]\().*)\}\}`)

// Sanitize replaces suspicious expressions with placeholders that print
// the original text. It returns the rewritten template and the placeholder
// values.
func Sanitize(templateStr string) (string, map[string]string) {
	literals := make(map[string]string)
	out := breakout.ReplaceAllStringFunc(templateStr, func(match string) string {
		name := fmt.Sprintf("_literal_%d", len(literals))
		literals[name] = match
		return "{{ " + name + " }}"
	})
	return out, literals
}

var unescaper = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&amp;", "&",
)

// Unescape reverses the HTML escaping of the five special characters.
func Unescape(s string) string {
	return unescaper.Replace(s)
}

// denyLoader refuses to load any template by name.
type denyLoader struct{}

func (denyLoader) Abs(base, name string) string { return name }

func (denyLoader) Get(path string) (io.Reader, error) {
	return nil, fmt.Errorf("template %q: loading templates by name is not allowed", path)
}

var filterMu sync.Mutex

func registerFilter(name string, fn pongo2.FilterFunction) error {
	filterMu.Lock()
	defer filterMu.Unlock()
	if pongo2.FilterExists(name) {
		return pongo2.ReplaceFilter(name, fn)
	}
	return pongo2.RegisterFilter(name, fn)
}
